package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/joshp123/solarcloud/internal/config"
	"github.com/joshp123/solarcloud/internal/oauth"
	"github.com/joshp123/solarcloud/internal/oauthflow"
	"github.com/joshp123/solarcloud/plugins/isolarcloud"
)

func oauthMain(args []string) {
	if len(args) == 0 {
		oauthUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "auth-code":
		authCodeCmd(args[1:])
	default:
		oauthUsage()
		os.Exit(2)
	}
}

func oauthUsage() {
	fmt.Println("solarcloud oauth <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  auth-code --redirect-url <url> [--config <path>] [--no-open] [--code <code>]")
}

type oauthOutput struct {
	Provider      string `json:"provider"`
	Flow          string `json:"flow"`
	StatePath     string `json:"state_path,omitempty"`
	StateOut      string `json:"state_out,omitempty"`
	BlobPersisted bool   `json:"blob_persisted,omitempty"`
	RefreshToken  string `json:"refresh_token,omitempty"`
}

func authCodeCmd(args []string) {
	flags := flag.NewFlagSet("auth-code", flag.ExitOnError)
	redirectURL := flags.String("redirect-url", "", "Redirect URL registered for the application")
	code := flags.String("code", "", "Authorization code, skips the browser step")
	configPath := flags.String("config", envOrDefault("SOLARCLOUD_CONFIG", config.DefaultPath), "Path to config.yaml")
	noOpen := flags.Bool("no-open", false, "Do not open the browser automatically")
	stateOut := flags.String("state-out", "", "Also write OAuth state to this file")
	statePath := flags.String("state-path", "", "Override persisted state path")
	jsonOut := flags.Bool("json", false, "Output JSON to stdout")
	printToken := flags.Bool("print-token", false, "Include refresh token in output")
	timeout := flags.Duration("timeout", 5*time.Minute, "Timeout for auth flow")
	skipBlob := flags.Bool("skip-blob", false, "Skip blob storage persistence")
	_ = flags.Parse(args)

	if *redirectURL == "" {
		oauthUsage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("oauth", err)
	}
	if cfg.ISolarCloud == nil {
		fatal("oauth", fmt.Errorf("isolarcloud is not configured"))
	}
	runtimeCfg, err := isolarcloud.ConfigFromFile(cfg.ISolarCloud)
	if err != nil {
		fatal("oauth", err)
	}
	decl := isolarcloud.OAuthDeclaration(runtimeCfg)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	authCode := strings.TrimSpace(*code)
	if authCode == "" {
		authURL, err := isolarcloud.AuthorizeURL(runtimeCfg, *redirectURL)
		if err != nil {
			fatal("oauth", err)
		}
		state, err := randomState(16)
		if err != nil {
			fatal("oauth", err)
		}
		printAuthPrompt(*jsonOut, "Open this URL to authorize:", authURL, "")
		if !*noOpen {
			_ = openBrowser(authURL)
		}
		authCode, err = waitForAuthCode(ctx, *redirectURL, state, *jsonOut)
		if err != nil {
			fatal("oauth", err)
		}
	}

	token, err := isolarcloud.NewTokenClient(runtimeCfg).Exchange(ctx, authCode, *redirectURL)
	if err != nil {
		fatal("oauth", err)
	}
	state, err := oauthflow.StateFromToken(decl, oauth.Bootstrap{ClientID: runtimeCfg.AppKey}, token)
	if err != nil {
		fatal("oauth", err)
	}

	var blobStore oauth.BlobStore
	if !*skipBlob {
		blobStore, err = oauth.NewBlobStore(cfg.OAuth)
		if err != nil {
			fatal("oauth", err)
		}
	}
	result, err := oauthflow.PersistState(ctx, decl, state, blobStore, oauthflow.PersistOptions{
		StatePathOverride: *statePath,
		TempPath:          *stateOut,
		SkipBlob:          *skipBlob || !cfg.OAuth.BlobConfigured(),
	})
	if err != nil {
		fatal("oauth", err)
	}

	output := oauthOutput{
		Provider:      decl.Provider,
		Flow:          "auth-code",
		StatePath:     result.StatePath,
		StateOut:      result.TempPath,
		BlobPersisted: result.BlobSaved,
	}
	if *printToken {
		output.RefreshToken = state.RefreshToken
	}
	emitOAuthOutput(output, *jsonOut)
}

func waitForAuthCode(ctx context.Context, redirectURL, state string, jsonOut bool) (string, error) {
	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}

	if isLoopback(parsed.Hostname()) && parsed.Scheme == "http" && parsed.Host != "" {
		code, err := listenForAuthCode(ctx, parsed, state)
		if err == nil {
			return code, nil
		}
		printAuthPrompt(jsonOut, fmt.Sprintf("Warning: failed to listen for callback, falling back to manual paste: %v", err))
	}

	if jsonOut {
		fmt.Fprint(os.Stderr, "Paste the authorization code (or full redirect URL): ")
	} else {
		fmt.Print("Paste the authorization code (or full redirect URL): ")
	}
	return readCode(os.Stdin)
}

func listenForAuthCode(ctx context.Context, redirect *url.URL, state string) (string, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Addr:              redirect.Host,
		ReadHeaderTimeout: 10 * time.Second,
		Handler:           callbackHandler(redirect.Path, state, codeCh, errCh),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		_ = srv.Close()
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("authorization timed out")
	case err := <-errCh:
		return "", err
	case code := <-codeCh:
		return code, nil
	}
}

// callbackHandler accepts the consent redirect. The gateway names the code either
// "code" or "auth_code" depending on region.
func callbackHandler(path, state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path != "" && r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query()
		if errStr := query.Get("error"); errStr != "" {
			send(errCh, fmt.Errorf("authorization error: %s", errStr))
			_, _ = w.Write([]byte("Authorization failed. You can close this window."))
			return
		}
		if got := query.Get("state"); got != "" && got != state {
			send(errCh, fmt.Errorf("state mismatch"))
			_, _ = w.Write([]byte("State mismatch. You can close this window."))
			return
		}
		code := codeFromQuery(query)
		if code == "" {
			send(errCh, fmt.Errorf("missing code in callback"))
			_, _ = w.Write([]byte("Missing authorization code. You can close this window."))
			return
		}
		send(codeCh, code)
		_, _ = w.Write([]byte("Authorization received. You can close this window."))
	})
}

func send[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func codeFromQuery(query url.Values) string {
	if code := query.Get("code"); code != "" {
		return code
	}
	return query.Get("auth_code")
}

func readCode(in io.Reader) (string, error) {
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no code provided")
	}

	if parsed, err := url.Parse(line); err == nil {
		if code := codeFromQuery(parsed.Query()); code != "" {
			return code, nil
		}
	}
	return line, nil
}

func openBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "linux":
		return exec.Command("xdg-open", target).Start()
	default:
		return nil
	}
}

func randomState(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func emitOAuthOutput(output oauthOutput, jsonOut bool) {
	if jsonOut {
		payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(output, "", "  ")
		if err != nil {
			fatal("oauth", err)
		}
		fmt.Fprintln(os.Stdout, string(payload))
		return
	}

	if output.StatePath != "" {
		fmt.Printf("State file: %s\n", output.StatePath)
	}
	if output.StateOut != "" {
		fmt.Printf("Temp state file: %s\n", output.StateOut)
	}
	fmt.Printf("Blob persisted: %t\n", output.BlobPersisted)
	if output.RefreshToken != "" {
		fmt.Printf("Refresh token: %s\n", output.RefreshToken)
	}
}

func printAuthPrompt(jsonOut bool, lines ...string) {
	out := os.Stdout
	if jsonOut {
		out = os.Stderr
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
