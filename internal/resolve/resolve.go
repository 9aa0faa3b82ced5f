// Package resolve turns a free-form GitHub link into an owner/name target.
package resolve

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrUnsupportedReference means the reference does not point at github.com.
	ErrUnsupportedReference = errors.New("unsupported reference kind")
	// ErrMalformedReference means the path is not exactly OWNER/REPO.
	ErrMalformedReference = errors.New("malformed reference")
)

// Target is the API-addressable form of a repository reference.
type Target struct {
	Owner string
	Name  string
}

func (t Target) String() string {
	return t.Owner + "/" + t.Name
}

// ReferenceError wraps ErrUnsupportedReference or ErrMalformedReference with
// the offending input.
type ReferenceError struct {
	Reference string
	Err       error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: %q", e.Err, e.Reference)
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}

// Resolve parses a repository URL into owner and name.
//
// Accepted shapes:
//
//	https://github.com/<owner>/<repo>
//	http://www.github.com/<owner>/<repo>/
//	github.com/<owner>/<repo>.git
func Resolve(raw string) (Target, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return Target{}, &ReferenceError{Reference: raw, Err: ErrUnsupportedReference}
	}

	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "github.com/") || strings.HasPrefix(lower, "www.github.com/") {
		ref = "https://" + ref
		lower = "https://" + lower
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return Target{}, &ReferenceError{Reference: raw, Err: ErrUnsupportedReference}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return Target{}, &ReferenceError{Reference: raw, Err: ErrMalformedReference}
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return Target{}, &ReferenceError{Reference: raw, Err: ErrUnsupportedReference}
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return Target{}, &ReferenceError{Reference: raw, Err: ErrMalformedReference}
	}
	owner := parts[0]
	name := strings.TrimSuffix(parts[1], ".git")
	if owner == "" || name == "" {
		return Target{}, &ReferenceError{Reference: raw, Err: ErrMalformedReference}
	}

	return Target{Owner: owner, Name: name}, nil
}
