package promptapi

import (
	"time"

	"github.com/Fillsogood/promptbook/cmd/internal/prompt"
)

type createPromptRequest struct {
	Title      string   `json:"title" validate:"required,notblank,max=100"`
	Content    string   `json:"content" validate:"required,notblank"`
	IsPublic   *bool    `json:"is_public"`
	IsFavorite *bool    `json:"is_favorite"`
	TagIDs     []string `json:"tag_ids" validate:"omitempty,dive,ulid"`
}

type patchPromptRequest struct {
	Title      *string  `json:"title" validate:"omitnil,notblank,max=100"`
	Content    *string  `json:"content" validate:"omitnil,notblank"`
	IsPublic   *bool    `json:"is_public"`
	IsFavorite *bool    `json:"is_favorite"`
	TagIDs     []string `json:"tag_ids" validate:"omitempty,dive,ulid"`
}

type runRequest struct {
	InputText string `json:"input_text"`
}

type runResponse struct {
	Output string `json:"output"`
}

type tagRequest struct {
	Name string `json:"name" validate:"required,notblank,max=30"`
}

type tagResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type promptResponse struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Content    string        `json:"content"`
	IsPublic   bool          `json:"is_public"`
	IsFavorite bool          `json:"is_favorite"`
	Tags       []tagResponse `json:"tags"`
	CreatedAt  time.Time     `json:"created_at"`
}

type logResponse struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	InputText  string    `json:"input_text"`
	OutputText string    `json:"output_text"`
	CreatedAt  time.Time `json:"created_at"`
}

func (req createPromptRequest) draft() prompt.Draft {
	return prompt.Draft{
		Title:      req.Title,
		Content:    req.Content,
		IsPublic:   deref(req.IsPublic),
		IsFavorite: deref(req.IsFavorite),
		TagIDs:     req.TagIDs,
	}
}

// patch turns a full PUT body into a Patch. Optional fields left out keep their stored value.
func (req createPromptRequest) patch() prompt.Patch {
	return prompt.Patch{
		Title:      &req.Title,
		Content:    &req.Content,
		IsPublic:   req.IsPublic,
		IsFavorite: req.IsFavorite,
		TagIDs:     req.TagIDs,
	}
}

func (req patchPromptRequest) patch() prompt.Patch {
	return prompt.Patch{
		Title:      req.Title,
		Content:    req.Content,
		IsPublic:   req.IsPublic,
		IsFavorite: req.IsFavorite,
		TagIDs:     req.TagIDs,
	}
}

func toTag(t prompt.Tag) tagResponse {
	return tagResponse{ID: t.ID, Name: t.Name}
}

func toTags(ts []prompt.Tag) []tagResponse {
	out := make([]tagResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTag(t))
	}
	return out
}

func toPrompt(p prompt.Prompt) promptResponse {
	return promptResponse{
		ID:         p.ID,
		Title:      p.Title,
		Content:    p.Content,
		IsPublic:   p.IsPublic,
		IsFavorite: p.IsFavorite,
		Tags:       toTags(p.Tags),
		CreatedAt:  p.CreatedAt,
	}
}

func toPrompts(ps []prompt.Prompt) []promptResponse {
	out := make([]promptResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPrompt(p))
	}
	return out
}

func toLogs(ls []prompt.Log) []logResponse {
	out := make([]logResponse, 0, len(ls))
	for _, l := range ls {
		out = append(out, logResponse{
			ID:         l.ID,
			Prompt:     l.PromptID,
			InputText:  l.InputText,
			OutputText: l.OutputText,
			CreatedAt:  l.CreatedAt,
		})
	}
	return out
}

func deref(b *bool) bool {
	return b != nil && *b
}
