package promptapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/Fillsogood/promptbook/cmd/internal/prompt"
	"github.com/Fillsogood/promptbook/cmd/internal/web"
)

// Prompts is the prompt service surface the handlers need.
type Prompts interface {
	List(ctx context.Context, ownerID string) ([]prompt.Prompt, error)
	Create(ctx context.Context, ownerID string, d prompt.Draft) (prompt.Prompt, error)
	Get(ctx context.Context, ownerID, id string) (prompt.Prompt, error)
	Update(ctx context.Context, ownerID, id string, patch prompt.Patch) (prompt.Prompt, error)
	Delete(ctx context.Context, ownerID, id string) error
	Run(ctx context.Context, ownerID, id, input string) (string, error)
	Logs(ctx context.Context, ownerID, promptID string) ([]prompt.Log, error)
	Tags(ctx context.Context) ([]prompt.Tag, error)
	CreateTag(ctx context.Context, name string) (prompt.Tag, error)
}

type Handler struct {
	log          *slog.Logger
	prompts      Prompts
	validate     *web.Validator
	maxBodyBytes int64
}

type HandlerOption func(*Handler)

// WithMaxBodyBytes caps JSON request bodies.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

func NewHandler(log *slog.Logger, prompts Prompts, opts ...HandlerOption) (*Handler, error) {
	if prompts == nil {
		return nil, errors.New("promptapi: nil prompts")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		log:          log,
		prompts:      prompts,
		validate:     web.NewValidator(),
		maxBodyBytes: web.DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Routes registers the prompt endpoints on r. The caller mounts r behind RequireAuth.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)

	r.Get("/logs/", h.handleLogs)
	r.Get("/tags/", h.handleListTags)
	r.Post("/tags/", h.handleCreateTag)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleReplace)
		r.Patch("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/run/", h.handleRun)
	})
}
