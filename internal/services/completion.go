package services

import "context"

// Completer turns a prompt into a completion. Implementations make exactly
// one provider request per call and report failures as *CompletionError.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
