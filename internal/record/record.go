// Package record defines the enrichment record written to the output log.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the enrichment output for one work item.
//
// Field names on the wire are the ones the downstream scorer reads, so they
// must not change. Nil pointers encode as JSON null ("not fetched").
type Record struct {
	ID            int64         `json:"总序号"`
	Reference     string        `json:"github链接"`
	Owner         string        `json:"owner"`
	Name          string        `json:"repo_name"`
	Stargazers    *int          `json:"stargazers_count"`
	Forks         *int          `json:"forks_count"`
	OpenIssues    *int          `json:"open_issues_count"`
	CreatedAt     *time.Time    `json:"created_at"`
	PushedAt      *time.Time    `json:"pushed_at"`
	Contributors  []Contributor `json:"contributor_list"`
	RecentCommits *int          `json:"recent_commits_count"`
	TotalCommits  *int          `json:"total_commits_count"`
	Error         *string       `json:"error"`
}

// New returns an empty record for the given item: every metric is null and
// the contributor list is empty (not null).
func New(id int64, reference, owner, name string) Record {
	return Record{
		ID:           id,
		Reference:    reference,
		Owner:        owner,
		Name:         name,
		Contributors: []Contributor{},
	}
}

// Failed reports whether the record carries an error.
func (r Record) Failed() bool {
	return r.Error != nil
}

// SetError records msg as the failure description.
func (r *Record) SetError(msg string) {
	r.Error = &msg
}

// ErrorMessage returns the error description or "".
func (r Record) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// Contributor is a (login, contributions) pair. It is encoded as a two
// element JSON array, e.g. ["octocat", 42].
type Contributor struct {
	Login         string
	Contributions int
}

func (c Contributor) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{c.Login, c.Contributions})
}

func (c *Contributor) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("contributor: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("contributor: expected [login, count], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &c.Login); err != nil {
		return fmt.Errorf("contributor login: %w", err)
	}
	if err := json.Unmarshal(raw[1], &c.Contributions); err != nil {
		return fmt.Errorf("contributor count: %w", err)
	}
	return nil
}

// Int returns a pointer to v; handy for populating nullable counters.
func Int(v int) *int {
	return &v
}
