package promptapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fillsogood/promptbook/cmd/identity"
	authapi "github.com/Fillsogood/promptbook/cmd/internal/auth/api"
	"github.com/Fillsogood/promptbook/cmd/internal/auth/session"
	"github.com/Fillsogood/promptbook/cmd/internal/prompt"
	"github.com/Fillsogood/promptbook/cmd/security/password"
)

type switchableLogStore struct {
	*prompt.MemoryStore
	failLogs bool
}

func (s *switchableLogStore) AppendLog(ctx context.Context, l prompt.Log) error {
	if s.failLogs {
		return errors.New("write failed")
	}
	return s.MemoryStore.AppendLog(ctx, l)
}

type fixture struct {
	router  http.Handler
	users   *identity.MemoryStore
	ledger  *session.MemoryLedger
	prompts *switchableLogStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	scfg := session.DefaultConfig()
	scfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	tm, err := session.NewTokenManager(scfg)
	require.NoError(t, err)
	ledger := session.NewMemoryLedger()
	sessions, err := session.NewService(scfg, tm, ledger)
	require.NoError(t, err)

	store := &switchableLogStore{MemoryStore: prompt.NewMemoryStore()}
	prompts, err := prompt.NewService(store, prompt.MockResponder{})
	require.NoError(t, err)

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1
	users := identity.NewMemoryStore()
	accounts, err := identity.NewAccounts(users, pw, identity.WithPurgers(prompts, sessions))
	require.NoError(t, err)

	acfg := authapi.DefaultConfig()
	acfg.CookieSecure = false
	authH, err := authapi.NewHandler(log, acfg, accounts, sessions)
	require.NoError(t, err)
	promptH, err := NewHandler(log, prompts)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api/accounts", authH.Routes)
	r.Route("/api/prompt", func(r chi.Router) {
		r.Use(authH.RequireAuth)
		promptH.Routes(r)
	})

	return &fixture{router: r, users: users, ledger: ledger, prompts: store}
}

func (f *fixture) do(t *testing.T, method, path, body string, access *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != nil {
		req.AddCookie(&http.Cookie{Name: access.Name, Value: access.Value})
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in, returning the access cookie and user id.
func (f *fixture) signup(t *testing.T, email string) (*http.Cookie, string) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/accounts/register/",
		`{"email":"`+email+`","username":"tester","password":"pass1234"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/accounts/login/", `{"email":"`+email+`","password":"pass1234"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var access *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == authapi.AccessCookieName {
			access = c
		}
	}
	require.NotNil(t, access)

	u, err := f.users.GetUserAuthByEmail(context.Background(), email)
	require.NoError(t, err)
	return access, u.ID
}

func decodeObject(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var l []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &l), rec.Body.String())
	return l
}

func fieldErrors(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	errs, ok := decodeObject(t, rec)["errors"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return errs
}

func (f *fixture) createPrompt(t *testing.T, access *http.Cookie, body string) map[string]any {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/prompt/", body, access)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeObject(t, rec)
}

func TestRequiresAuthentication(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/prompt/"},
		{http.MethodPost, "/api/prompt/"},
		{http.MethodGet, "/api/prompt/logs/"},
		{http.MethodGet, "/api/prompt/tags/"},
		{http.MethodPost, "/api/prompt/01ARZ3NDEKTSV4RRFFQ69G5FAV/run/"},
	} {
		rec := f.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestCreateListGet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	access, _ := f.signup(t, "tester@example.com")

	created := f.createPrompt(t, access, `{"title":"My Prompt","content":"Answer as {input}."}`)
	assert.Equal(t, "My Prompt", created["title"])
	assert.Equal(t, "Answer as {input}.", created["content"])
	assert.Equal(t, false, created["is_public"])
	assert.Equal(t, false, created["is_favorite"])
	assert.Equal(t, []any{}, created["tags"])
	assert.NotEmpty(t, created["created_at"])
	assert.NotContains(t, created, "tag_ids")
	id, _ := created["id"].(string)
	require.Len(t, id, 26)

	f.createPrompt(t, access, `{"title":"Second","content":"c","is_public":true}`)

	rec := f.do(t, http.MethodGet, "/api/prompt/", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeList(t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "Second", list[0]["title"])
	assert.Equal(t, true, list[0]["is_public"])
	assert.Equal(t, "My Prompt", list[1]["title"])

	rec = f.do(t, http.MethodGet, "/api/prompt/"+id+"/", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeObject(t, rec)["id"])

	rec = f.do(t, http.MethodGet, "/api/prompt/not-an-id/", "", access)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/prompt/01ARZ3NDEKTSV4RRFFQ69G5FAV/", "", access)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	access, userID := f.signup(t, "tester@example.com")

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"missing title", `{"content":"c"}`, "title"},
		{"blank title", `{"title":"  ","content":"c"}`, "title"},
		{"long title", `{"title":"` + strings.Repeat("x", 101) + `","content":"c"}`, "title"},
		{"missing content", `{"title":"t"}`, "content"},
		{"bad tag id", `{"title":"t","content":"c","tag_ids":["nope"]}`, "tag_ids"},
		{"unknown tag", `{"title":"t","content":"c","tag_ids":["01ARZ3NDEKTSV4RRFFQ69G5FAV"]}`, "tag_ids"},
	}
	for _, tc := range cases {
		rec := f.do(t, http.MethodPost, "/api/prompt/", tc.body, access)
		require.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
		assert.Contains(t, fieldErrors(t, rec), tc.field, tc.name)
	}

	prompts, _ := f.prompts.Counts(userID)
	assert.Zero(t, prompts)

	rec := f.do(t, http.MethodPost, "/api/prompt/", `{"title":"t","content":"c","owner_id":"x"}`, access)
	assert.Equal(t, http.StatusCreated, rec.Code, "extra keys are ignored")
	prompts, _ = f.prompts.Counts(userID)
	assert.Equal(t, 1, prompts)
	prompts, _ = f.prompts.Counts("x")
	assert.Zero(t, prompts)
}

func TestTagsAndUpdates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	access, _ := f.signup(t, "tester@example.com")

	rec := f.do(t, http.MethodPost, "/api/prompt/tags/", `{"name":"writing"}`, access)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	writing := decodeObject(t, rec)
	rec = f.do(t, http.MethodPost, "/api/prompt/tags/", `{"name":"code"}`, access)
	require.Equal(t, http.StatusCreated, rec.Code)
	code := decodeObject(t, rec)

	rec = f.do(t, http.MethodPost, "/api/prompt/tags/", `{"name":"writing"}`, access)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []any{"tag with this name already exists"}, fieldErrors(t, rec)["name"])

	rec = f.do(t, http.MethodGet, "/api/prompt/tags/", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	tags := decodeList(t, rec)
	require.Len(t, tags, 2)
	assert.Equal(t, "code", tags[0]["name"])

	created := f.createPrompt(t, access, `{"title":"t","content":"c","tag_ids":["`+writing["id"].(string)+`"]}`)
	id := created["id"].(string)
	assert.Equal(t, []any{map[string]any{"id": writing["id"], "name": "writing"}}, created["tags"])

	rec = f.do(t, http.MethodPatch, "/api/prompt/"+id+"/", `{"is_favorite":true}`, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeObject(t, rec)
	assert.Equal(t, true, got["is_favorite"])
	assert.Equal(t, "t", got["title"])
	assert.Len(t, got["tags"], 1, "tags kept when tag_ids is absent")

	rec = f.do(t, http.MethodPatch, "/api/prompt/"+id+"/", `{"tag_ids":["`+code["id"].(string)+`"]}`, access)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decodeObject(t, rec)
	assert.Equal(t, []any{map[string]any{"id": code["id"], "name": "code"}}, got["tags"])

	rec = f.do(t, http.MethodPatch, "/api/prompt/"+id+"/", `{"title":""}`, access)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, fieldErrors(t, rec), "title")

	rec = f.do(t, http.MethodPut, "/api/prompt/"+id+"/", `{"title":"only title"}`, access)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, fieldErrors(t, rec), "content")

	rec = f.do(t, http.MethodPut, "/api/prompt/"+id+"/", `{"title":"New","content":"New content","tag_ids":[]}`, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decodeObject(t, rec)
	assert.Equal(t, "New", got["title"])
	assert.Equal(t, "New content", got["content"])
	assert.Equal(t, true, got["is_favorite"], "PUT keeps omitted optional fields")
	assert.Equal(t, []any{}, got["tags"])
}

func TestOwnerScoping(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice, _ := f.signup(t, "alice@example.com")
	bob, bobID := f.signup(t, "bob@example.com")

	id := f.createPrompt(t, alice, `{"title":"secret","content":"c"}`)["id"].(string)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/prompt/" + id + "/", ""},
		{http.MethodPatch, "/api/prompt/" + id + "/", `{"title":"mine now"}`},
		{http.MethodPut, "/api/prompt/" + id + "/", `{"title":"mine now","content":"c"}`},
		{http.MethodDelete, "/api/prompt/" + id + "/", ""},
		{http.MethodPost, "/api/prompt/" + id + "/run/", `{"input_text":"hi"}`},
	} {
		rec := f.do(t, tc.method, tc.path, tc.body, bob)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method)
	}

	rec := f.do(t, http.MethodGet, "/api/prompt/", "", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	_, logs := f.prompts.Counts(bobID)
	assert.Zero(t, logs)

	rec = f.do(t, http.MethodGet, "/api/prompt/"+id+"/", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "secret", decodeObject(t, rec)["title"])
}

func TestRunAndLogs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	access, userID := f.signup(t, "tester@example.com")

	id := f.createPrompt(t, access, `{"title":"Test Prompt","content":"Say {input}!"}`)["id"].(string)
	other := f.createPrompt(t, access, `{"title":"Other","content":"c"}`)["id"].(string)

	rec := f.do(t, http.MethodPost, "/api/prompt/"+id+"/run/", `{"input_text":"  world "}`, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"output":"[MOCK RESPONSE] 'Test Prompt' → 'world'"}`, rec.Body.String())

	for _, body := range []string{`{"input_text":"   "}`, `{}`, ""} {
		rec = f.do(t, http.MethodPost, "/api/prompt/"+id+"/run/", body, access)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"message":"input_text is required and must not be blank"}`, rec.Body.String())
	}
	_, logs := f.prompts.Counts(userID)
	require.Equal(t, 1, logs)

	rec = f.do(t, http.MethodPost, "/api/prompt/"+other+"/run/", `{"input_text":"x"}`, access)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/prompt/logs/", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeList(t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, other, list[0]["prompt"])
	assert.Equal(t, id, list[1]["prompt"])
	assert.Equal(t, "world", list[1]["input_text"])
	assert.Equal(t, "[MOCK RESPONSE] 'Test Prompt' → 'world'", list[1]["output_text"])
	for _, k := range []string{"id", "created_at"} {
		assert.NotEmpty(t, list[1][k], k)
	}

	rec = f.do(t, http.MethodGet, "/api/prompt/logs/?prompt="+id, "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeList(t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/prompt/logs/?prompt=bogus", "", access)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, fieldErrors(t, rec), "prompt")

	rec = f.do(t, http.MethodDelete, "/api/prompt/"+id+"/", "", access)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/prompt/"+id+"/", "", access)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/prompt/logs/", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeList(t, rec), 1, "deleted prompt takes its logs along")
}

func TestRun_LogWriteFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	access, userID := f.signup(t, "tester@example.com")
	id := f.createPrompt(t, access, `{"title":"t","content":"c"}`)["id"].(string)

	f.prompts.failLogs = true
	rec := f.do(t, http.MethodPost, "/api/prompt/"+id+"/run/", `{"input_text":"hi"}`, access)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"failed to record prompt run"}`, rec.Body.String())

	_, logs := f.prompts.Counts(userID)
	assert.Zero(t, logs)
}

func TestAccountDeletionCascades(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	access, userID := f.signup(t, "tester@example.com")
	_, otherID := f.signup(t, "other@example.com")

	rec := f.do(t, http.MethodPost, "/api/prompt/tags/", `{"name":"shared"}`, access)
	require.Equal(t, http.StatusCreated, rec.Code)
	tagID := decodeObject(t, rec)["id"].(string)

	id := f.createPrompt(t, access, `{"title":"t","content":"c","tag_ids":["`+tagID+`"]}`)["id"].(string)
	rec = f.do(t, http.MethodPost, "/api/prompt/"+id+"/run/", `{"input_text":"hi"}`, access)
	require.Equal(t, http.StatusOK, rec.Code)

	prompts, logs := f.prompts.Counts(userID)
	require.Equal(t, 1, prompts)
	require.Equal(t, 1, logs)
	require.Equal(t, 1, f.ledger.CountForUser(userID))

	rec = f.do(t, http.MethodDelete, "/api/accounts/delete/", "", access)
	require.Equal(t, http.StatusNoContent, rec.Code)

	prompts, logs = f.prompts.Counts(userID)
	assert.Zero(t, prompts)
	assert.Zero(t, logs)
	assert.Zero(t, f.ledger.CountForUser(userID))
	_, err := f.users.GetUserByID(context.Background(), userID)
	assert.True(t, identity.IsNotFound(err))

	assert.Equal(t, 1, f.ledger.CountForUser(otherID))
	tags, err := f.prompts.ListTags(context.Background())
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	rec = f.do(t, http.MethodGet, "/api/prompt/", "", access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
