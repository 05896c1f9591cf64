package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"medrag/internal/domain"
)

type workerRequest struct {
	ID  string `json:"id"`
	Job Job    `json:"job"`
}

type workerResponse struct {
	ID          string `json:"id"`
	Answer      string `json:"answer,omitempty"`
	Error       string `json:"error,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// ProcessWorker runs each job in a fresh child process that speaks the
// ServeWorker protocol: one JSON request on stdin, one JSON response line on
// stdout. The child is killed when ctx is done.
type ProcessWorker struct {
	Path string
	Args []string
	// Env is appended to the parent's environment.
	Env []string
}

func (p *ProcessWorker) Run(ctx context.Context, job Job) (string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(workerRequest{ID: id, Job: job})
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	runErr := cmd.Run()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if runErr != nil {
		return "", fmt.Errorf("worker process %s: %w: %s", id, runErr, lastLine(stderr.String()))
	}

	resp, err := decodeResponse(stdout.Bytes())
	if err != nil {
		return "", fmt.Errorf("worker process %s: %w", id, err)
	}
	if resp.ID != id {
		return "", fmt.Errorf("worker process %s: response for job %q", id, resp.ID)
	}
	if resp.Error != "" {
		if resp.Unavailable {
			return "", fmt.Errorf("%s: %w", resp.Error, domain.ErrModelUnavailable)
		}
		return "", errors.New(resp.Error)
	}
	return resp.Answer, nil
}

// decodeResponse takes the last JSON line of the child's stdout.
func decodeResponse(out []byte) (workerResponse, error) {
	var resp workerResponse
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), &resp); err == nil {
			return resp, nil
		}
	}
	return resp, errors.New("no response on stdout")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ServeWorker is the child side of ProcessWorker: it reads one request from
// in, runs it on w and writes the response to out.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, w Worker) error {
	var req workerRequest
	if err := json.NewDecoder(bufio.NewReader(in)).Decode(&req); err != nil {
		return fmt.Errorf("read job: %w", err)
	}
	resp := workerResponse{ID: req.ID}
	answer, err := w.Run(ctx, req.Job)
	if err != nil {
		resp.Error = err.Error()
		resp.Unavailable = errors.Is(err, domain.ErrModelUnavailable)
	} else {
		resp.Answer = answer
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}
