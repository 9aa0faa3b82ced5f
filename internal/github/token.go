package github

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// TokenSource names where a token came from; it is logged, the token never is.
type TokenSource string

const (
	TokenSourceNone     TokenSource = "none"
	TokenSourceExplicit TokenSource = "config"
	TokenSourceEnv      TokenSource = "env:GITHUB_TOKEN"
	TokenSourceGitHubCL TokenSource = "gh"
)

// ghLookup is replaced in tests.
var ghLookup = tokenFromGitHubCLI

// ResolveToken picks the first non-empty token from: the explicit value
// (flag, config file or OPENRANK_TOKEN), GITHUB_TOKEN, `gh auth token`.
func ResolveToken(ctx context.Context, explicit string) (string, TokenSource, error) {
	if tok := strings.TrimSpace(explicit); tok != "" {
		return tok, TokenSourceExplicit, nil
	}
	if tok := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); tok != "" {
		return tok, TokenSourceEnv, nil
	}
	tok, err := ghLookup(ctx)
	if err != nil {
		return "", TokenSourceNone, err
	}
	if tok != "" {
		return tok, TokenSourceGitHubCL, nil
	}
	return "", TokenSourceNone, nil
}

// tokenFromGitHubCLI asks an installed and logged-in gh for its token. A
// missing or logged-out gh yields "" without error.
func tokenFromGitHubCLI(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return "", nil
	}

	// A broken credential helper must not hang start-up.
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gh", "auth", "token", "-h", "github.com")
	env := make([]string, 0, len(os.Environ())+1)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "GH_PAGER=") {
			env = append(env, kv)
		}
	}
	cmd.Env = append(env, "GH_PAGER=cat")

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// gh output is not surfaced; it may contain account details.
		return "", nil
	}

	tok := strings.TrimSpace(string(out))
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", errors.New("invalid token returned by gh: contains whitespace")
	}
	return tok, nil
}
