package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type GeminiCompleter struct {
	client   *genai.Client
	model    contentGenerator
	timeout  time.Duration
	rateChan chan struct{} // Token bucket
}

func NewGeminiCompleter(apiKey, modelName string, concurrentReqs int, timeout time.Duration) (*GeminiCompleter, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	g := newGeminiCompleter(model, concurrentReqs, timeout)
	g.client = client
	return g, nil
}

func newGeminiCompleter(model contentGenerator, concurrentReqs int, timeout time.Duration) *GeminiCompleter {
	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiCompleter{
		model:    model,
		timeout:  timeout,
		rateChan: rateChan,
	}
}

func (g *GeminiCompleter) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

// acquireRate blocks until a rate slot is available
func (g *GeminiCompleter) acquireRate(ctx context.Context) error {
	select {
	case <-g.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (g *GeminiCompleter) releaseRate() {
	g.rateChan <- struct{}{}
}

// Complete sends the prompt as a single text part and returns the joined
// text of all candidates.
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.acquireRate(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return "", &CompletionError{Message: "AI request cancelled", Err: err}
		}
		return "", &CompletionError{Message: "AI provider is busy", RateLimited: true, Err: err}
	}
	defer g.releaseRate()

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonUnspecified {
			log.Printf("WARNING: Gemini candidate %d stopped due to %s", i, cand.FinishReason)
		}
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", &CompletionError{Message: "AI provider returned an empty response"}
	}
	return text, nil
}

func classifyGeminiError(err error) *CompletionError {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &CompletionError{Message: "AI response was blocked by safety filters", Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &CompletionError{Message: "AI provider timed out", Err: err}
	}

	if status.Code(err) == codes.ResourceExhausted {
		return &CompletionError{Message: "AI provider rate limit exceeded", RateLimited: true, Err: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &CompletionError{Message: "AI provider rate limit exceeded", RateLimited: true, Err: err}
	}

	return &CompletionError{Message: "Gemini API error", Err: err}
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
