package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestReadCodeAcceptsRedirectURL(t *testing.T) {
	code, err := readCode(strings.NewReader("http://localhost:8765/callback?auth_code=abc&state=x\n"))
	if err != nil {
		t.Fatalf("readCode: %v", err)
	}
	if code != "abc" {
		t.Fatalf("code = %q", code)
	}

	code, err = readCode(strings.NewReader("  raw-code  "))
	if err != nil || code != "raw-code" {
		t.Fatalf("code = %q err = %v", code, err)
	}

	if _, err := readCode(strings.NewReader("\n")); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestCallbackHandler(t *testing.T) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	handler := callbackHandler("/callback", "s1", codeCh, errCh)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=xyz&state=s1", nil))
	select {
	case code := <-codeCh:
		if code != "xyz" {
			t.Fatalf("code = %q", code)
		}
	default:
		t.Fatalf("expected code")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=xyz&state=other", nil))
	select {
	case err := <-errCh:
		if !strings.Contains(err.Error(), "state mismatch") {
			t.Fatalf("unexpected error: %v", err)
		}
	default:
		t.Fatalf("expected state error")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIsLoopback(t *testing.T) {
	for host, want := range map[string]bool{"localhost": true, "127.0.0.1": true, "::1": true, "example.com": false} {
		if got := isLoopback(host); got != want {
			t.Fatalf("isLoopback(%q) = %t", host, got)
		}
	}
	if codeFromQuery(url.Values{}) != "" {
		t.Fatalf("expected empty code")
	}
}
