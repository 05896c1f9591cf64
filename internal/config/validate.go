package config

import "fmt"

// FieldError reports an invalid configuration value.
type FieldError struct {
	Field  string
	Value  any
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &FieldError{Field: field, Value: value, Reason: fmt.Sprintf("must be one of %v", allowed)}
}

// Validate returns the first invalid field as a *FieldError.
func (c *AppConfig) Validate() error {
	checks := []func() error{
		func() error { return oneOf("embedder.type", c.Embedder.Type, "hashing", "openai") },
		func() error { return oneOf("vector_store.type", c.VectorStore.Type, "sqlite", "memory", "qdrant") },
		func() error { return oneOf("literature.type", c.Literature.Type, "pubmed", "none") },
		func() error { return oneOf("generation.worker", c.Generation.Worker, "inprocess", "process") },
		func() error { return oneOf("translation.type", c.Translation.Type, "none", "model") },
		func() error { return oneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "error") },
		func() error { return oneOf("logging.format", c.Logging.Format, "text", "json") },
		func() error {
			if t := c.Retrieval.Threshold; t < -1 || t > 1 {
				return &FieldError{Field: "retrieval.threshold", Value: t, Reason: "must be within [-1, 1]"}
			}
			return nil
		},
		func() error { return positive("retrieval.num_results", c.Retrieval.NumResults) },
		func() error { return positive("retrieval.max_candidates", c.Retrieval.MaxCandidates) },
		func() error { return positive("classifier.k", c.Classifier.K) },
		func() error { return positive("generation.timeout_secs", c.Generation.TimeoutSecs) },
		func() error {
			if c.Conversation.MaxTurns < 0 {
				return &FieldError{Field: "conversation.max_turns", Value: c.Conversation.MaxTurns, Reason: "must be >= 0 (0 keeps everything)"}
			}
			return nil
		},
		func() error {
			if c.Embedder.Type == "hashing" && c.Embedder.Hashing != nil && c.Embedder.Hashing.Dimension < 16 {
				return &FieldError{Field: "embedder.hashing.dimension", Value: c.Embedder.Hashing.Dimension, Reason: "must be >= 16"}
			}
			return nil
		},
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func positive(field string, v int) error {
	if v <= 0 {
		return &FieldError{Field: field, Value: v, Reason: "must be > 0"}
	}
	return nil
}
