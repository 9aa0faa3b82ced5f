package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

// RemoteAPIError is a structured failure returned by GitHub: rate limiting,
// not found, permission denied, empty repository and so on.
type RemoteAPIError struct {
	Step    string
	Status  int
	Message string
	Err     error
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("RemoteAPIError: %d - %s", e.Status, e.Message)
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// UnknownError is any other failure: timeouts, DNS, connection resets,
// undecodable bodies.
type UnknownError struct {
	Step string
	Err  error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("UnknownError: %v", e.Err)
}

func (e *UnknownError) Unwrap() error {
	return e.Err
}

// classify maps a go-github failure onto the two error classes. resp is the
// response that came back with err, if any.
func classify(step string, err error, resp *github.Response) error {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return &RemoteAPIError{Step: step, Status: statusOf(rle.Response), Message: messageOr(rle.Message, "API rate limit exceeded"), Err: err}
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) {
		return &RemoteAPIError{Step: step, Status: statusOf(er.Response), Message: messageOr(er.Message, http.StatusText(statusOf(er.Response))), Err: err}
	}
	var ae *github.AcceptedError
	if errors.As(err, &ae) {
		return &RemoteAPIError{Step: step, Status: http.StatusAccepted, Message: "request accepted, data not ready yet", Err: err}
	}
	// Other typed go-github errors, e.g. secondary rate limits, still carry
	// the response.
	if resp != nil && resp.Response != nil && resp.StatusCode >= 300 {
		return &RemoteAPIError{Step: step, Status: resp.StatusCode, Message: messageOr(scrubRequest(err.Error()), http.StatusText(resp.StatusCode)), Err: err}
	}
	return &UnknownError{Step: step, Err: err}
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func messageOr(msg, fallback string) string {
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	if fallback == "" {
		return "No message"
	}
	return fallback
}

// scrubRequest drops the "GET https://api.github.com/...: " prefix go-github
// puts in front of error messages.
func scrubRequest(s string) string {
	for _, m := range []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "} {
		if !strings.HasPrefix(s, m) {
			continue
		}
		if i := strings.Index(s, "://"); i >= 0 {
			if j := strings.Index(s[i:], ": "); j >= 0 {
				return strings.TrimSpace(s[i+j+2:])
			}
		}
		break
	}
	return strings.TrimSpace(s)
}
