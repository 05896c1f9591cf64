package classifier

// Label marks an exemplar as medical or not.
type Label int

const (
	NonMedical Label = 0
	Medical    Label = 1
)

func (l Label) String() string {
	if l == Medical {
		return "medical"
	}
	return "non-medical"
}

func (l Label) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// Exemplar is a labeled reference question.
type Exemplar struct {
	Text  string `json:"text"`
	Label Label  `json:"label"`
}

var medicalQuestions = []string{
	// symptoms
	"What are the symptoms of a heart attack?",
	"How long does a migraine usually last?",
	"What are the causes of cancer?",
	"What should I do if I have a fever?",
	"What are the side effects of antibiotics?",
	// conditions
	"What are the symptoms of an aneurysm?",
	"How do I recognize diabetes?",
	"What causes hypertension?",
	"What are the signs of stroke?",
	"How is pneumonia diagnosed?",
	"What are the types of leukemia?",
	"What are the symptoms of a concussion?",
	// treatment
	"How is chemotherapy administered?",
	"What antibiotics treat bronchitis?",
	"How long should I take these medications?",
	"What is the treatment for arthritis?",
	"Is surgery necessary for herniated disc?",
	// anatomy
	"Where is the appendix located?",
	"What does the pancreas do?",
	"How does the heart pump blood?",
	"What is the function of the thyroid?",
	// tests
	"What does high cholesterol mean?",
	"How to interpret blood test results?",
	"What is a normal blood pressure?",
	"What causes elevated liver enzymes?",
	// mental health
	"How to recognize depression?",
	"What are ADHD symptoms?",
	"How is anxiety treated?",
	"What is bipolar disorder?",
	// emergencies
	"What to do in case of seizure?",
	"How to perform CPR?",
	"What are the signs of anaphylaxis?",
	"How to stop bleeding?",
	// other
	"What is an aneurysm?",
	"What causes arrhythmia?",
	"What is a benign tumor?",
	"What is the difference between CT and MRI?",
}

var nonMedicalQuestions = []string{
	"What is a scalene triangle?",
	"How do I cook pasta?",
	"What is the capital of France?",
	"How do I change a tire?",
	"Who won the World Cup in 2018?",
	"What are the best tourist spots in Italy?",
	"How to solve this math equation?",
	"What is photosynthesis?",
	"How much does a Tesla cost?",
	"Who wrote Romeo and Juliet?",
	"Who invented Coca Cola?",
	"When was the Eiffel Tower built?",
	"How to make a chocolate cake?",
	"What is the height of Mount Everest?",
	"How does a car engine work?",
	"What is the meaning of this emoji?",
	"How to play chess?",
	"What are the rules of football?",
	"Who painted the Mona Lisa?",
	"What is the boiling point of water?",
	"How to grow tomatoes?",
	"What is the diameter of the Earth?",
	"How to tie a tie?",
	"What is the square root of 144?",
	"Who is the current president of France?",
	"What is the function of a capacitor?",
	"How does a refrigerator work?",
	"What is the difference between a crocodile and an alligator?",
	"What happened in World War II?",
	"How to solve a Rubik's cube?",
}

// DefaultExemplars returns the built-in English exemplar set.
func DefaultExemplars() []Exemplar {
	out := make([]Exemplar, 0, len(medicalQuestions)+len(nonMedicalQuestions))
	for _, q := range medicalQuestions {
		out = append(out, Exemplar{Text: q, Label: Medical})
	}
	for _, q := range nonMedicalQuestions {
		out = append(out, Exemplar{Text: q, Label: NonMedical})
	}
	return out
}
