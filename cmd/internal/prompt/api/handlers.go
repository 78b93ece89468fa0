package promptapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Fillsogood/promptbook/cmd/identity/ids"
	authapi "github.com/Fillsogood/promptbook/cmd/internal/auth/api"
	"github.com/Fillsogood/promptbook/cmd/internal/prompt"
	"github.com/Fillsogood/promptbook/cmd/internal/web"
)

const (
	msgValidationFailed = "validation failed"
	msgInternal         = "internal error"
	msgNotFound         = "not found"
	msgInputRequired    = "input_text is required and must not be blank"
	msgRunLogFailed     = "failed to record prompt run"
	msgTagTaken         = "tag with this name already exists"
)

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	ps, err := h.prompts.List(r.Context(), owner)
	if err != nil {
		h.writeError(w, "prompt.list", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, toPrompts(ps))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req createPromptRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.prompts.Create(r.Context(), owner, req.draft())
	if err != nil {
		h.writeError(w, "prompt.create", err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, toPrompt(p))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	p, err := h.prompts.Get(r.Context(), owner, id)
	if err != nil {
		h.writeError(w, "prompt.get", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, toPrompt(p))
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var req createPromptRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.update(w, r, owner, id, req.patch())
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var req patchPromptRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.update(w, r, owner, id, req.patch())
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, owner, id string, patch prompt.Patch) {
	p, err := h.prompts.Update(r.Context(), owner, id, patch)
	if err != nil {
		h.writeError(w, "prompt.update", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, toPrompt(p))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	if err := h.prompts.Delete(r.Context(), owner, id); err != nil {
		h.writeError(w, "prompt.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	// A missing body is treated as blank input so the prompt lookup still decides 404 first.
	var req runRequest
	if err := web.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil && !errors.Is(err, web.ErrEmptyBody) {
		web.WriteDecodeError(w, err)
		return
	}

	out, err := h.prompts.Run(r.Context(), owner, id, req.InputText)
	switch {
	case err == nil:
		web.WriteJSON(w, http.StatusOK, runResponse{Output: out})
	case errors.Is(err, prompt.ErrLogWrite):
		h.log.Error("prompt.run.log_write.fail", "err", err, "prompt_id", id, "user_id", owner)
		web.WriteError(w, http.StatusInternalServerError, msgRunLogFailed)
	case errors.Is(err, prompt.ErrEmptyInput):
		web.WriteError(w, http.StatusBadRequest, msgInputRequired)
	default:
		h.writeError(w, "prompt.run", err)
	}
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	promptID := strings.TrimSpace(r.URL.Query().Get("prompt"))
	if promptID != "" && !ids.Valid(promptID) {
		web.WriteFieldErrors(w, msgValidationFailed, map[string][]string{"prompt": {"must be a valid id"}})
		return
	}

	logs, err := h.prompts.Logs(r.Context(), owner, promptID)
	if err != nil {
		h.writeError(w, "prompt.logs", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, toLogs(logs))
}

func (h *Handler) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.prompts.Tags(r.Context())
	if err != nil {
		h.writeError(w, "prompt.tags", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, toTags(tags))
}

func (h *Handler) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.prompts.CreateTag(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, "prompt.tag_create", err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, toTag(t))
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := authapi.PrincipalFromContext(r.Context())
	if !ok {
		web.WriteError(w, http.StatusUnauthorized, authapi.UnauthenticatedMessage)
		return "", false
	}
	return p.UserID, true
}

// ownerAndID resolves the caller and the {id} path parameter. Ids that cannot be ULIDs are 404.
func (h *Handler) ownerAndID(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return "", "", false
	}
	id := chi.URLParam(r, "id")
	if !ids.Valid(id) {
		web.WriteError(w, http.StatusNotFound, msgNotFound)
		return "", "", false
	}
	return owner, id, true
}

// decode reads and validates a JSON body, writing the 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := web.DecodeJSON(w, r, h.maxBodyBytes, dst); err != nil {
		web.WriteDecodeError(w, err)
		return false
	}
	err := h.validate.Validate(dst)
	if err == nil {
		return true
	}
	var verr *web.ValidationError
	if errors.As(err, &verr) {
		web.WriteFieldErrors(w, msgValidationFailed, verr.Fields)
		return false
	}
	h.log.Error("prompt.validate.fail", "err", err)
	web.WriteError(w, http.StatusInternalServerError, msgInternal)
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var unknownTag prompt.UnknownTagError
	switch {
	case errors.Is(err, prompt.ErrNotFound):
		web.WriteError(w, http.StatusNotFound, msgNotFound)
	case errors.As(err, &unknownTag):
		web.WriteFieldErrors(w, msgValidationFailed, map[string][]string{
			"tag_ids": {fmt.Sprintf("tag %q does not exist", unknownTag.ID)},
		})
	case errors.Is(err, prompt.ErrConflict):
		web.WriteFieldErrors(w, msgValidationFailed, map[string][]string{"name": {msgTagTaken}})
	default:
		if fe, ok := prompt.AsFieldError(err); ok {
			web.WriteFieldErrors(w, msgValidationFailed, map[string][]string{fe.Field: {fe.Reason}})
			return
		}
		h.log.Error(op+".fail", "err", err)
		web.WriteError(w, http.StatusInternalServerError, msgInternal)
	}
}
