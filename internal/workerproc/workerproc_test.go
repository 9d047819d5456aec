package workerproc

import (
	"context"
	"errors"
	"testing"

	"kpieval-backend/internal/evaluations"
	"kpieval-backend/internal/queue"
)

type recordingRunner struct {
	ranID string
	err   error
}

func (r *recordingRunner) Run(ctx context.Context, id string) error {
	r.ranID = id
	return r.err
}

func validBody(t *testing.T) string {
	t.Helper()
	payload, err := queue.EncodeMessage(queue.Message{EvaluationID: "eval-1", RequestID: "req-1", Version: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(payload)
}

func TestParseMessage(t *testing.T) {
	msg, meta, err := ParseMessage(validBody(t))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.EvaluationID != "eval-1" {
		t.Fatalf("evaluation id = %s", msg.EvaluationID)
	}
	if meta.BodyLen == 0 || meta.BodySHA == "" {
		t.Fatalf("meta not computed: %+v", meta)
	}
}

func TestParseMessageErrors(t *testing.T) {
	if _, _, err := ParseMessage("   "); err == nil {
		t.Fatal("expected empty body error")
	}
	if _, _, err := ParseMessage("{malformed"); err == nil {
		t.Fatal("expected decode error")
	}
	if _, _, err := ParseMessage(`{"requestId":"r"}`); err == nil {
		t.Fatal("expected missing evaluation id error")
	}
}

func TestHandleMessageRuns(t *testing.T) {
	runner := &recordingRunner{}
	if err := HandleMessage(context.Background(), runner, validBody(t)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if runner.ranID != "eval-1" {
		t.Fatalf("ran id = %s, want eval-1", runner.ranID)
	}
}

func TestHandleMessageWrapsRunError(t *testing.T) {
	cause := errors.New("boom")
	runner := &recordingRunner{err: cause}
	err := HandleMessage(context.Background(), runner, validBody(t))
	var procErr ErrProcess
	if !errors.As(err, &procErr) {
		t.Fatalf("error = %v, want ErrProcess", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("ErrProcess must unwrap to the cause")
	}
}

func TestDiscardable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"empty body", ErrEmptyBody{}, true},
		{"decode", ErrDecode{Err: errors.New("bad json")}, true},
		{"missing id", ErrMissingEvaluationID{}, true},
		{"terminal", ErrProcess{Err: evaluations.ErrTerminal}, true},
		{"already running", ErrProcess{Err: evaluations.ErrAlreadyRunning}, true},
		{"not found", ErrProcess{Err: evaluations.ErrNotFound}, true},
		{"transient", ErrProcess{Err: errors.New("upstream 503")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Discardable(tt.err); got != tt.want {
				t.Fatalf("Discardable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
