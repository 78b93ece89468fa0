package prompt

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by the server when no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	prompts   map[string]memPrompt
	tags      map[string]Tag
	tagByName map[string]string
	logs      []Log
}

type memPrompt struct {
	Prompt
	tagIDs []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prompts:   make(map[string]memPrompt),
		tags:      make(map[string]Tag),
		tagByName: make(map[string]string),
	}
}

func (s *MemoryStore) CreatePrompt(ctx context.Context, p Prompt, tagIDs []string) (Prompt, error) {
	if err := ctx.Err(); err != nil {
		return Prompt{}, err
	}
	tagIDs = uniqueIDs(tagIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTagsLocked(tagIDs); err != nil {
		return Prompt{}, err
	}
	row := memPrompt{Prompt: p, tagIDs: slices.Clone(tagIDs)}
	row.Tags = nil
	s.prompts[p.ID] = row
	return s.viewLocked(row), nil
}

func (s *MemoryStore) GetPrompt(ctx context.Context, ownerID, id string) (Prompt, error) {
	if err := ctx.Err(); err != nil {
		return Prompt{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.prompts[id]
	if !ok || row.OwnerID != ownerID {
		return Prompt{}, ErrNotFound
	}
	return s.viewLocked(row), nil
}

func (s *MemoryStore) ListPrompts(ctx context.Context, ownerID string) ([]Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Prompt, 0)
	for _, row := range s.prompts {
		if row.OwnerID == ownerID {
			out = append(out, s.viewLocked(row))
		}
	}
	newestFirst(out, func(p Prompt) (time.Time, string) { return p.CreatedAt, p.ID })
	return out, nil
}

func (s *MemoryStore) UpdatePrompt(ctx context.Context, ownerID, id string, patch Patch, now time.Time) (Prompt, error) {
	if err := ctx.Err(); err != nil {
		return Prompt{}, err
	}
	tagIDs := uniqueIDs(patch.TagIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.prompts[id]
	if !ok || row.OwnerID != ownerID {
		return Prompt{}, ErrNotFound
	}
	if tagIDs != nil {
		if err := s.checkTagsLocked(tagIDs); err != nil {
			return Prompt{}, err
		}
		row.tagIDs = slices.Clone(tagIDs)
	}
	patch.Apply(&row.Prompt)
	row.UpdatedAt = now
	s.prompts[id] = row
	return s.viewLocked(row), nil
}

func (s *MemoryStore) DeletePrompt(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.prompts[id]
	if !ok || row.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.prompts, id)
	s.logs = slices.DeleteFunc(s.logs, func(l Log) bool { return l.PromptID == id })
	return nil
}

func (s *MemoryStore) CreateTag(ctx context.Context, t Tag) (Tag, error) {
	if err := ctx.Err(); err != nil {
		return Tag{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.tagByName[t.Name]; taken {
		return Tag{}, ErrConflict
	}
	s.tags[t.ID] = t
	s.tagByName[t.Name] = t.ID
	return t, nil
}

func (s *MemoryStore) ListTags(ctx context.Context) ([]Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	sortTags(out)
	return out, nil
}

func (s *MemoryStore) AppendLog(ctx context.Context, l Log) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.prompts[l.PromptID]
	if !ok || row.OwnerID != l.OwnerID {
		return ErrNotFound
	}
	s.logs = append(s.logs, l)
	return nil
}

func (s *MemoryStore) ListLogs(ctx context.Context, ownerID, promptID string) ([]Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Log, 0)
	for _, l := range s.logs {
		if l.OwnerID != ownerID || (promptID != "" && l.PromptID != promptID) {
			continue
		}
		out = append(out, l)
	}
	newestFirst(out, func(l Log) (time.Time, string) { return l.CreatedAt, l.ID })
	return out, nil
}

func (s *MemoryStore) PurgeUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owned := make(map[string]bool)
	for id, row := range s.prompts {
		if row.OwnerID == userID {
			owned[id] = true
		}
	}
	s.logs = slices.DeleteFunc(s.logs, func(l Log) bool { return l.OwnerID == userID || owned[l.PromptID] })
	for id := range owned {
		delete(s.prompts, id)
	}
	return nil
}

// Counts reports how many prompts and logs userID owns.
func (s *MemoryStore) Counts(userID string) (prompts, logs int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.prompts {
		if row.OwnerID == userID {
			prompts++
		}
	}
	for _, l := range s.logs {
		if l.OwnerID == userID {
			logs++
		}
	}
	return prompts, logs
}

func (s *MemoryStore) checkTagsLocked(ids []string) error {
	for _, id := range ids {
		if _, ok := s.tags[id]; !ok {
			return UnknownTagError{ID: id}
		}
	}
	return nil
}

func (s *MemoryStore) viewLocked(row memPrompt) Prompt {
	p := row.Prompt
	p.Tags = make([]Tag, 0, len(row.tagIDs))
	for _, id := range row.tagIDs {
		if t, ok := s.tags[id]; ok {
			p.Tags = append(p.Tags, t)
		}
	}
	sortTags(p.Tags)
	return p
}
