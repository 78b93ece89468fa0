package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Fillsogood/promptbook/cmd/identity/ids"
)

// Run outcome labels reported to the run counter.
const (
	RunResultOK         = "ok"
	RunResultEmptyInput = "empty_input"
	RunResultNotFound   = "not_found"
	RunResultLogWrite   = "log_write_failed"
	RunResultError      = "error"
)

// Service applies validation and ownership rules on top of a Store.
type Service struct {
	store     Store
	responder Responder
	runs      *prometheus.CounterVec
	now       func() time.Time
}

type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunCounter reports every Run outcome to c, which must have a single "result" label.
func WithRunCounter(c *prometheus.CounterVec) ServiceOption {
	return func(s *Service) { s.runs = c }
}

// NewService builds a Service. A nil responder falls back to MockResponder.
func NewService(store Store, responder Responder, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("prompt: nil store")
	}
	if responder == nil {
		responder = MockResponder{}
	}
	s := &Service{
		store:     store,
		responder: responder,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Create(ctx context.Context, ownerID string, d Draft) (Prompt, error) {
	title, err := checkTitle(d.Title)
	if err != nil {
		return Prompt{}, err
	}
	if err := checkContent(d.Content); err != nil {
		return Prompt{}, err
	}

	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Prompt{}, err
	}

	return s.store.CreatePrompt(ctx, Prompt{
		ID:         id,
		OwnerID:    ownerID,
		Title:      title,
		Content:    d.Content,
		IsPublic:   d.IsPublic,
		IsFavorite: d.IsFavorite,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, d.TagIDs)
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (Prompt, error) {
	return s.store.GetPrompt(ctx, ownerID, id)
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Prompt, error) {
	return s.store.ListPrompts(ctx, ownerID)
}

func (s *Service) Update(ctx context.Context, ownerID, id string, patch Patch) (Prompt, error) {
	if patch.Title != nil {
		title, err := checkTitle(*patch.Title)
		if err != nil {
			return Prompt{}, err
		}
		patch.Title = &title
	}
	if patch.Content != nil {
		if err := checkContent(*patch.Content); err != nil {
			return Prompt{}, err
		}
	}
	return s.store.UpdatePrompt(ctx, ownerID, id, patch, s.now())
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	return s.store.DeletePrompt(ctx, ownerID, id)
}

// Run renders the prompt against input and appends exactly one log row.
// The prompt lookup happens first, so a foreign or missing prompt is ErrNotFound even for blank input.
func (s *Service) Run(ctx context.Context, ownerID, id, input string) (string, error) {
	out, err := s.run(ctx, ownerID, id, input)
	s.observe(err)
	return out, err
}

func (s *Service) run(ctx context.Context, ownerID, id, input string) (string, error) {
	p, err := s.store.GetPrompt(ctx, ownerID, id)
	if err != nil {
		return "", err
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	output, err := s.responder.Respond(ctx, p, input)
	if err != nil {
		return "", fmt.Errorf("prompt: respond: %w", err)
	}

	now := s.now()
	logID, err := ids.NewULID(now)
	if err != nil {
		return "", err
	}
	err = s.store.AppendLog(ctx, Log{
		ID:         logID,
		PromptID:   p.ID,
		OwnerID:    ownerID,
		InputText:  input,
		OutputText: output,
		CreatedAt:  now,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLogWrite, err)
	}
	return output, nil
}

func (s *Service) observe(err error) {
	if s.runs == nil {
		return
	}
	result := RunResultOK
	switch {
	case err == nil:
	case errors.Is(err, ErrLogWrite):
		result = RunResultLogWrite
	case errors.Is(err, ErrEmptyInput):
		result = RunResultEmptyInput
	case errors.Is(err, ErrNotFound):
		result = RunResultNotFound
	default:
		result = RunResultError
	}
	s.runs.WithLabelValues(result).Inc()
}

// Logs lists the owner's run logs, optionally narrowed to one prompt.
func (s *Service) Logs(ctx context.Context, ownerID, promptID string) ([]Log, error) {
	return s.store.ListLogs(ctx, ownerID, strings.TrimSpace(promptID))
}

func (s *Service) Tags(ctx context.Context) ([]Tag, error) {
	return s.store.ListTags(ctx)
}

func (s *Service) CreateTag(ctx context.Context, name string) (Tag, error) {
	name, err := checkTagName(name)
	if err != nil {
		return Tag{}, err
	}
	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Tag{}, err
	}
	return s.store.CreateTag(ctx, Tag{ID: id, Name: name, CreatedAt: now})
}

// PurgeUser removes everything userID owns. It is run before the user row is deleted.
func (s *Service) PurgeUser(ctx context.Context, userID string) error {
	return s.store.PurgeUser(ctx, userID)
}
