package prompt

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength   = 100
	MaxTagNameLength = 30
)

// Prompt is a user-owned prompt template.
type Prompt struct {
	ID         string
	OwnerID    string
	Title      string
	Content    string
	IsPublic   bool
	IsFavorite bool
	Tags       []Tag // ordered by name
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Tag is a label shared by every user's prompts.
type Tag struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Log is one recorded run of a prompt.
type Log struct {
	ID         string
	PromptID   string
	OwnerID    string
	InputText  string
	OutputText string
	CreatedAt  time.Time
}

// Draft is the input for a new prompt.
type Draft struct {
	Title      string
	Content    string
	IsPublic   bool
	IsFavorite bool
	TagIDs     []string
}

// Patch changes the non-nil fields of a prompt. A non-nil TagIDs replaces the tag set,
// an empty non-nil slice clears it.
type Patch struct {
	Title      *string
	Content    *string
	IsPublic   *bool
	IsFavorite *bool
	TagIDs     []string
}

// Apply writes the patch onto p. Tags are left to the store.
func (pt Patch) Apply(p *Prompt) {
	if pt.Title != nil {
		p.Title = *pt.Title
	}
	if pt.Content != nil {
		p.Content = *pt.Content
	}
	if pt.IsPublic != nil {
		p.IsPublic = *pt.IsPublic
	}
	if pt.IsFavorite != nil {
		p.IsFavorite = *pt.IsFavorite
	}
}

func checkTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	switch {
	case title == "":
		return "", FieldError{Field: "title", Reason: "this field may not be blank"}
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return "", FieldError{Field: "title", Reason: "must contain at most 100 characters"}
	}
	return title, nil
}

func checkContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return FieldError{Field: "content", Reason: "this field may not be blank"}
	}
	return nil
}

func checkTagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", FieldError{Field: "name", Reason: "this field may not be blank"}
	case utf8.RuneCountInString(name) > MaxTagNameLength:
		return "", FieldError{Field: "name", Reason: "must contain at most 30 characters"}
	}
	return name, nil
}

// uniqueIDs trims ids and drops blanks and duplicates, keeping first-seen order.
// A nil input stays nil so callers can tell "absent" from "empty".
func uniqueIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func sortTags(tags []Tag) {
	slices.SortFunc(tags, func(a, b Tag) int { return strings.Compare(a.Name, b.Name) })
}

// newestFirst orders by creation time, then id, both descending.
func newestFirst[T any](items []T, key func(T) (time.Time, string)) {
	slices.SortFunc(items, func(a, b T) int {
		ta, ia := key(a)
		tb, ib := key(b)
		if c := tb.Compare(ta); c != 0 {
			return c
		}
		return strings.Compare(ib, ia)
	})
}
