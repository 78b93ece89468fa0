package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fillsogood/promptbook/cmd/identity"
)

func testConfig() Config {
	return Config{
		HTTPAddr:               "127.0.0.1:0",
		LogLevel:               "error",
		LogFormat:              "json",
		DevMode:                true,
		DBSchema:               "public",
		MaxBodyBytes:           1 << 20,
		CookieSecure:           false,
		AuthSigner:             "paseto",
		AuthIssuer:             "promptbook",
		AccessTTL:              30 * time.Minute,
		RefreshTTL:             7 * 24 * time.Hour,
		ClockSkew:              30 * time.Second,
		PasswordMinLength:      8,
		PasswordMaxLength:      256,
		Argon2MemoryKiB:        8 * 1024,
		Argon2Iterations:       1,
		Argon2Parallelism:      1,
		LoginAttemptsPerMinute: 600,
		LoginBurst:             50,
	}
}

type testClient struct {
	t    *testing.T
	app  *App
	base string
	http *http.Client
}

func newTestApp(t *testing.T, mutate func(*Config)) *testClient {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(t.Context(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testClient{t: t, app: a, base: srv.URL, http: &http.Client{Jar: jar}}
}

func (c *testClient) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(c.t.Context(), method, c.base+path, r)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	out, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, out
}

func TestApp_HealthAndReadiness(t *testing.T) {
	c := newTestApp(t, nil)

	resp, body := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, body = c.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready\n", string(body))
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	c := newTestApp(t, func(cfg *Config) { cfg.ReadinessRequireDB = true })

	resp, _ := c.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestApp_CommonHeadersAndNotFound(t *testing.T) {
	c := newTestApp(t, nil)

	resp, body := c.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"not found"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestApp_PromptRoutesRequireAuth(t *testing.T) {
	c := newTestApp(t, nil)

	resp, _ := c.do(http.MethodGet, "/api/prompt/", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestApp_EndToEndFlowAndMetrics(t *testing.T) {
	c := newTestApp(t, nil)

	resp, _ := c.do(http.MethodPost, "/api/accounts/register/", map[string]string{
		"email": "writer@example.com", "username": "writer", "password": "correct-horse-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/accounts/login/", map[string]string{
		"email": "writer@example.com", "password": "correct-horse-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := c.do(http.MethodGet, "/api/accounts/me/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"email":"writer@example.com","username":"writer"}`, string(body))

	resp, body = c.do(http.MethodPost, "/api/prompt/", map[string]any{"title": "Greeter", "content": "Say hi"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)

	resp, body = c.do(http.MethodPost, "/api/prompt/"+created.ID+"/run/", map[string]string{"input_text": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"output":"[MOCK RESPONSE] 'Greeter' → 'hello'"}`, string(body))

	resp, body = c.do(http.MethodGet, "/api/prompt/logs/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logs []map[string]any
	require.NoError(t, json.Unmarshal(body, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, created.ID, logs[0]["prompt"])

	resp, body = c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	metrics := string(body)
	assert.Contains(t, metrics, `promptbook_prompt_runs_total{result="ok"} 1`)
	assert.Contains(t, metrics, `promptbook_http_requests_total{method="POST",route="/api/prompt/{id}/run",status="200"} 1`)

	resp, _ = c.do(http.MethodPost, "/api/accounts/logout/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodGet, "/api/accounts/me/", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestApp_SetAccountActive(t *testing.T) {
	c := newTestApp(t, nil)

	creds := map[string]string{"email": "ops@example.com", "password": "correct-horse-1"}
	resp, _ := c.do(http.MethodPost, "/api/accounts/register/", map[string]string{
		"email": creds["email"], "username": "ops", "password": creds["password"],
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, "/api/accounts/login/", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	u, err := c.app.SetAccountActive(t.Context(), "OPS@example.com", false)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	resp, _ = c.do(http.MethodGet, "/api/accounts/me/", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, "/api/accounts/login/refresh/", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, "/api/accounts/login/", creds)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = c.app.SetAccountActive(t.Context(), "ops@example.com", true)
	require.NoError(t, err)
	resp, _ = c.do(http.MethodPost, "/api/accounts/login/", creds)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = c.app.SetAccountActive(t.Context(), "nobody@example.com", false)
	assert.True(t, identity.IsNotFound(err))
}

func TestApp_JWTSigner(t *testing.T) {
	c := newTestApp(t, func(cfg *Config) {
		cfg.AuthSigner = "jwt"
		cfg.JWTSecret = strings.Repeat("j", 32)
	})

	resp, _ := c.do(http.MethodPost, "/api/accounts/register/", map[string]string{
		"email": "jwt@example.com", "username": "jwt", "password": "correct-horse-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, "/api/accounts/login/", map[string]string{
		"email": "jwt@example.com", "password": "correct-horse-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = c.do(http.MethodGet, "/api/accounts/me/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_StrictHMACWithoutKeyFails(t *testing.T) {
	cfg := testConfig()
	cfg.RequireTokenHMAC = true

	_, err := New(t.Context(), cfg, discardLogger())
	require.Error(t, err)
}
