package triage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"FeedbackFlow/internal/ports"
)

var errServiceDown = errors.New("service unavailable")

type fakeCompleter struct {
	mu      sync.Mutex
	answers func(req ports.CompletionRequest) (string, error)
	calls   []ports.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.answers == nil {
		return "", errServiceDown
	}
	return f.answers(req)
}

func (f *fakeCompleter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// scripted answers the filter prompt with filterAnswer and the JSON prompt with analysis.
func scripted(filterAnswer, analysis string, analysisErr error) *fakeCompleter {
	return &fakeCompleter{answers: func(req ports.CompletionRequest) (string, error) {
		if req.JSON {
			return analysis, analysisErr
		}
		return filterAnswer, nil
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
