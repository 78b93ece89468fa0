package prompt

import (
	"context"
	"time"
)

// Store is the prompt persistence boundary. Prompt and log queries are always filtered by owner.
type Store interface {
	// CreatePrompt inserts p with the given tag links. Unknown tag ids fail with UnknownTagError.
	CreatePrompt(ctx context.Context, p Prompt, tagIDs []string) (Prompt, error)
	GetPrompt(ctx context.Context, ownerID, id string) (Prompt, error)
	ListPrompts(ctx context.Context, ownerID string) ([]Prompt, error)
	UpdatePrompt(ctx context.Context, ownerID, id string, patch Patch, now time.Time) (Prompt, error)
	// DeletePrompt removes the prompt together with its logs and tag links.
	DeletePrompt(ctx context.Context, ownerID, id string) error

	CreateTag(ctx context.Context, t Tag) (Tag, error)
	ListTags(ctx context.Context) ([]Tag, error)

	AppendLog(ctx context.Context, l Log) error
	// ListLogs returns the owner's logs, newest first. A non-empty promptID narrows to one prompt.
	ListLogs(ctx context.Context, ownerID, promptID string) ([]Log, error)

	// PurgeUser removes every log, tag link and prompt owned by userID. Tags themselves stay.
	PurgeUser(ctx context.Context, userID string) error
}
