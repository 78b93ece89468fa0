// Package main provides a CI-friendly smoke test for a running promptbook server.
//
// It validates:
//   - register + login (cookies set)
//   - me
//   - prompt create + run (mock output)
//   - run log recorded
//   - logout (access rejected afterwards)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"
)

type smokeClient struct {
	base    string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		password = flag.String("password", "smoke-test-password-1", "Password for the throwaway account")
		input    = flag.String("input", "hello promptbook", "Input text for the prompt run")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookie jar: %v", err)
	}
	c := &smokeClient{
		base:    strings.TrimRight(*baseURL, "/"),
		http:    &http.Client{Jar: jar},
		timeout: *timeout,
		verbose: *verbose,
	}

	suffix := time.Now().UTC().Format("20060102150405.000000")
	email := "smoke+" + strings.ReplaceAll(suffix, ".", "") + "@example.com"

	c.mustStatus("register", http.MethodPost, "/api/accounts/register/", map[string]string{
		"email": email, "username": "smoke", "password": *password,
	}, http.StatusCreated, nil)

	c.mustStatus("login", http.MethodPost, "/api/accounts/login/", map[string]string{
		"email": email, "password": *password,
	}, http.StatusOK, nil)

	var me struct {
		Email string `json:"email"`
	}
	c.mustStatus("me", http.MethodGet, "/api/accounts/me/", nil, http.StatusOK, &me)
	if !strings.EqualFold(me.Email, email) {
		fatalf("me: email mismatch: got=%q want=%q", me.Email, email)
	}

	var created struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	c.mustStatus("prompt create", http.MethodPost, "/api/prompt/", map[string]any{
		"title": "smoke", "content": "smoke prompt body",
	}, http.StatusCreated, &created)
	if created.ID == "" {
		fatalf("prompt create: missing id")
	}

	var run struct {
		Output string `json:"output"`
	}
	c.mustStatus("prompt run", http.MethodPost, "/api/prompt/"+created.ID+"/run/", map[string]string{
		"input_text": *input,
	}, http.StatusOK, &run)
	if !strings.Contains(run.Output, *input) {
		fatalf("prompt run: output %q does not mention input", run.Output)
	}

	var logs []struct {
		Prompt     string `json:"prompt"`
		OutputText string `json:"output_text"`
	}
	c.mustStatus("logs", http.MethodGet, "/api/prompt/logs/?prompt="+url.QueryEscape(created.ID), nil, http.StatusOK, &logs)
	if len(logs) != 1 || logs[0].Prompt != created.ID || logs[0].OutputText != run.Output {
		fatalf("logs: unexpected entries: %+v", logs)
	}

	c.mustStatus("logout", http.MethodPost, "/api/accounts/logout/", nil, http.StatusOK, nil)
	c.mustStatus("me after logout", http.MethodGet, "/api/accounts/me/", nil, http.StatusUnauthorized, nil)

	fmt.Println("OK: api smoke passed")
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func (c *smokeClient) mustStatus(step, method, path string, body any, want int, out any) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("%s: marshal: %v", step, err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		fatalf("%s: request: %v", step, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s: %v", step, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("%s: read body: %v", step, err)
	}
	if c.verbose {
		fmt.Printf("%-16s %s %s -> %d %s\n", step, method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode != want {
		fatalf("%s: status=%d want=%d body=%s", step, resp.StatusCode, want, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			fatalf("%s: decode: %v", step, err)
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
