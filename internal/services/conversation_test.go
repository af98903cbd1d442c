package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chat-backend/internal/models"
	"chat-backend/internal/repository"
)

type stubCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

type stubOwners struct {
	owners map[uuid.UUID]*models.Owner
	err    error
}

func (s *stubOwners) GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	if s.err != nil {
		return nil, s.err
	}
	o, ok := s.owners[id]
	if !ok {
		return nil, models.ErrOwnerNotFound
	}
	return o, nil
}

type failingStore struct {
	TranscriptStore
	loadErr   error
	appendErr error
	clearErr  error
	appends   int
}

func (f *failingStore) Load(ctx context.Context, id uuid.UUID) (*models.Transcript, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.TranscriptStore.Load(ctx, id)
}

func (f *failingStore) Append(ctx context.Context, id uuid.UUID, turns []models.Turn) (*models.Transcript, error) {
	f.appends++
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	return f.TranscriptStore.Append(ctx, id, turns)
}

func (f *failingStore) Clear(ctx context.Context, id uuid.UUID) (*models.Transcript, error) {
	if f.clearErr != nil {
		return nil, f.clearErr
	}
	return f.TranscriptStore.Clear(ctx, id)
}

type recordingNotifier struct {
	events []string
	err    error
}

func (r *recordingNotifier) TranscriptChanged(ctx context.Context, userID uuid.UUID, eventType string, t *models.Transcript) error {
	r.events = append(r.events, eventType)
	return r.err
}

type fixture struct {
	svc       *ConversationService
	store     *repository.MemoryTranscriptRepo
	completer *stubCompleter
	notifier  *recordingNotifier
	alice     uuid.UUID
	bob       uuid.UUID
}

func newFixture(reply string) *fixture {
	alice, bob := uuid.New(), uuid.New()
	owners := &stubOwners{owners: map[uuid.UUID]*models.Owner{
		alice: {ID: alice},
		bob:   {ID: bob},
	}}
	store := repository.NewMemoryTranscriptRepo()
	completer := &stubCompleter{reply: reply}
	notifier := &recordingNotifier{}
	return &fixture{
		svc:       NewConversationService(owners, store, completer, notifier, 0),
		store:     store,
		completer: completer,
		notifier:  notifier,
		alice:     alice,
		bob:       bob,
	}
}

func TestConverse_FirstMessage(t *testing.T) {
	f := newFixture("4")

	got, err := f.svc.Converse(context.Background(), f.alice, "2+2?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []models.Turn{
		{Role: models.RoleUser, Content: "2+2?"},
		{Role: models.RoleAssistant, Content: "4"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if len(f.completer.prompts) != 1 || f.completer.prompts[0] != "user: 2+2?" {
		t.Fatalf("unexpected prompts sent: %q", f.completer.prompts)
	}
	if !reflect.DeepEqual(f.notifier.events, []string{models.EventTranscriptUpdated}) {
		t.Fatalf("unexpected notifications: %v", f.notifier.events)
	}
}

func TestConverse_IncludesHistoryInPrompt(t *testing.T) {
	f := newFixture("hello")
	ctx := context.Background()

	if _, err := f.svc.Converse(ctx, f.alice, "hi"); err != nil {
		t.Fatalf("first converse failed: %v", err)
	}
	f.completer.reply = "goodbye"
	got, err := f.svc.Converse(ctx, f.alice, "bye")
	if err != nil {
		t.Fatalf("second converse failed: %v", err)
	}

	if f.completer.prompts[1] != "user: hi\nassistant: hello\nuser: bye" {
		t.Fatalf("unexpected prompt: %q", f.completer.prompts[1])
	}
	if len(got) != 4 || got[2].Role != models.RoleUser || got[3].Role != models.RoleAssistant {
		t.Fatalf("expected transcript to grow by a user/assistant pair, got %+v", got)
	}
}

func TestConverse_RejectsBlankMessage(t *testing.T) {
	f := newFixture("x")

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.Converse(context.Background(), f.alice, msg)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError for %q, got %v", msg, err)
		}
		if ve.Fields["message"] == "" {
			t.Fatalf("expected message field error, got %+v", ve.Fields)
		}
	}
	if len(f.completer.prompts) != 0 {
		t.Fatalf("provider must not be called for invalid input")
	}
}

func TestConverse_CompletionFailureLeavesTranscript(t *testing.T) {
	f := newFixture("hello")
	ctx := context.Background()

	if _, err := f.svc.Converse(ctx, f.alice, "hi"); err != nil {
		t.Fatalf("converse failed: %v", err)
	}
	before, _ := f.svc.GetTranscript(ctx, f.alice)

	f.completer.err = errors.New("provider exploded")
	for i := 0; i < 3; i++ {
		_, err := f.svc.Converse(ctx, f.alice, "again")
		var ce *CompletionError
		if !errors.As(err, &ce) {
			t.Fatalf("expected CompletionError, got %v", err)
		}
		if ce.RateLimited {
			t.Fatalf("generic failure must not be reported as rate limited")
		}
	}

	after, _ := f.svc.GetTranscript(ctx, f.alice)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("transcript changed after failed completions: before=%+v after=%+v", before, after)
	}
}

func TestConverse_RateLimitedProvider(t *testing.T) {
	f := newFixture("")
	f.completer.err = classifyGeminiError(status.Error(codes.ResourceExhausted, "quota exceeded"))

	_, err := f.svc.Converse(context.Background(), f.alice, "hi")
	var ce *CompletionError
	if !errors.As(err, &ce) || !ce.RateLimited {
		t.Fatalf("expected rate limited CompletionError, got %v", err)
	}

	got, _ := f.svc.GetTranscript(context.Background(), f.alice)
	if len(got) != 0 {
		t.Fatalf("expected unchanged empty transcript, got %+v", got)
	}
	if len(f.notifier.events) != 0 {
		t.Fatalf("no notification expected on failure, got %v", f.notifier.events)
	}
}

func TestConverse_StorageFailures(t *testing.T) {
	f := newFixture("4")
	storeErr := errors.New("disk full")

	t.Run("load", func(t *testing.T) {
		fs := &failingStore{TranscriptStore: f.store, loadErr: storeErr}
		svc := NewConversationService(f.svc.owners, fs, f.completer, nil, 0)

		_, err := svc.Converse(context.Background(), f.alice, "hi")
		var se *StorageError
		if !errors.As(err, &se) || se.Op != "load" || !errors.Is(err, storeErr) {
			t.Fatalf("expected load StorageError, got %v", err)
		}
		if fs.appends != 0 {
			t.Fatalf("append must not run after a failed load")
		}
	})

	t.Run("append", func(t *testing.T) {
		fs := &failingStore{TranscriptStore: f.store, appendErr: storeErr}
		svc := NewConversationService(f.svc.owners, fs, f.completer, nil, 0)

		_, err := svc.Converse(context.Background(), f.alice, "hi")
		var se *StorageError
		if !errors.As(err, &se) || se.Op != "append" {
			t.Fatalf("expected append StorageError, got %v", err)
		}
		got, _ := f.store.Load(context.Background(), f.alice)
		if len(got.Turns) != 0 {
			t.Fatalf("failed append must not persist turns: %+v", got.Turns)
		}
	})

	t.Run("clear", func(t *testing.T) {
		fs := &failingStore{TranscriptStore: f.store, clearErr: storeErr}
		svc := NewConversationService(f.svc.owners, fs, f.completer, nil, 0)

		err := svc.ResetTranscript(context.Background(), f.alice)
		var se *StorageError
		if !errors.As(err, &se) || se.Op != "clear" {
			t.Fatalf("expected clear StorageError, got %v", err)
		}
	})
}

func TestConverse_PromptTokenCap(t *testing.T) {
	f := newFixture("ok")
	f.svc.maxPromptTokens = 3

	_, err := f.svc.Converse(context.Background(), f.alice, "this message is clearly longer than three tokens")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(f.completer.prompts) != 0 {
		t.Fatalf("provider must not be called when the prompt is over the cap")
	}
}

func TestGetTranscript_IdempotentRead(t *testing.T) {
	f := newFixture("4")
	ctx := context.Background()
	f.svc.Converse(ctx, f.alice, "2+2?")

	first, err := f.svc.GetTranscript(ctx, f.alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := f.svc.GetTranscript(ctx, f.alice)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical reads, got %+v and %+v", first, second)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	f := newFixture("for alice")
	ctx := context.Background()

	f.svc.Converse(ctx, f.alice, "hello")
	f.completer.reply = "for bob"
	f.svc.Converse(ctx, f.bob, "hey")

	if err := f.svc.ResetTranscript(ctx, f.bob); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	aliceTurns, _ := f.svc.GetTranscript(ctx, f.alice)
	if len(aliceTurns) != 2 || aliceTurns[1].Content != "for alice" {
		t.Fatalf("alice's transcript was affected by bob: %+v", aliceTurns)
	}
	bobTurns, _ := f.svc.GetTranscript(ctx, f.bob)
	if len(bobTurns) != 0 {
		t.Fatalf("expected bob's transcript cleared, got %+v", bobTurns)
	}
}

func TestResetTranscript_ClearsFully(t *testing.T) {
	f := newFixture("4")
	ctx := context.Background()
	f.svc.Converse(ctx, f.alice, "2+2?")

	if err := f.svc.ResetTranscript(ctx, f.alice); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	got, err := f.svc.GetTranscript(ctx, f.alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil transcript, got %#v", got)
	}
	if f.notifier.events[len(f.notifier.events)-1] != models.EventTranscriptCleared {
		t.Fatalf("expected cleared notification, got %v", f.notifier.events)
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture("4")
	ctx := context.Background()

	t.Run("missing identity", func(t *testing.T) {
		_, err := f.svc.GetTranscript(ctx, uuid.Nil)
		var ue *UnauthorizedError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UnauthorizedError, got %v", err)
		}
	})

	t.Run("unregistered identity", func(t *testing.T) {
		_, err := f.svc.Converse(ctx, uuid.New(), "hi")
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if len(f.completer.prompts) != 0 {
			t.Fatalf("provider must not be called for unknown users")
		}
	})

	t.Run("owner record mismatch", func(t *testing.T) {
		impostor := uuid.New()
		owners := &stubOwners{owners: map[uuid.UUID]*models.Owner{impostor: {ID: f.alice}}}
		svc := NewConversationService(owners, f.store, f.completer, nil, 0)

		err := svc.ResetTranscript(ctx, impostor)
		var ue *UnauthorizedError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UnauthorizedError, got %v", err)
		}
	})

	t.Run("directory failure", func(t *testing.T) {
		svc := NewConversationService(&stubOwners{err: errors.New("db down")}, f.store, f.completer, nil, 0)

		_, err := svc.GetTranscript(ctx, f.alice)
		var se *StorageError
		if !errors.As(err, &se) {
			t.Fatalf("expected StorageError, got %v", err)
		}
	})
}

type foreignStore struct {
	TranscriptStore
	owner uuid.UUID
}

func (f *foreignStore) Load(ctx context.Context, id uuid.UUID) (*models.Transcript, error) {
	return &models.Transcript{UserID: f.owner, Turns: []models.Turn{{Role: models.RoleUser, Content: "secret"}}}, nil
}

func TestGetTranscript_RejectsForeignTranscript(t *testing.T) {
	f := newFixture("4")
	svc := NewConversationService(f.svc.owners, &foreignStore{TranscriptStore: f.store, owner: f.bob}, f.completer, nil, 0)

	_, err := svc.GetTranscript(context.Background(), f.alice)
	var ue *UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError for another user's transcript, got %v", err)
	}
}

func TestConverse_NotifierFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture("4")
	f.notifier.err = errors.New("redis down")

	got, err := f.svc.Converse(context.Background(), f.alice, "2+2?")
	if err != nil {
		t.Fatalf("notification failure must not fail converse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected transcript: %+v", got)
	}
}
