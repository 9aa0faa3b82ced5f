// Package fetcher populates result records from the GitHub REST API.
package fetcher

import (
	"context"
	"fmt"
	"time"

	gh "github.com/SureOnThisShiningNight/openrank/internal/github"
	"github.com/SureOnThisShiningNight/openrank/internal/metrics"
	"github.com/SureOnThisShiningNight/openrank/internal/ratelimit"
	"github.com/SureOnThisShiningNight/openrank/internal/record"
	"github.com/SureOnThisShiningNight/openrank/internal/resolve"
	"github.com/SureOnThisShiningNight/openrank/internal/worklist"

	"github.com/google/go-github/v81/github"
	"go.uber.org/zap"
)

// Fetch steps, in the order they run.
const (
	StepSummary       = "summary"
	StepContributors  = "contributors"
	StepRecentCommits = "recent_commits"
	StepTotalCommits  = "total_commits"
)

// DefaultRecentWindow is the trailing window for recent commit counts.
const DefaultRecentWindow = 30 * 24 * time.Hour

const contributorsPerPage = 100

type Fetcher struct {
	client  *gh.Client
	pacer   *ratelimit.Pacer
	budget  *ratelimit.Budget
	metrics *metrics.Metrics
	logger  *zap.Logger
	window  time.Duration
	now     func() time.Time
}

type Option func(*Fetcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithRecentWindow sets the trailing window for the recent commit count.
func WithRecentWindow(d time.Duration) Option {
	return func(f *Fetcher) { f.window = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

func New(client *gh.Client, pacer *ratelimit.Pacer, budget *ratelimit.Budget, opts ...Option) (*Fetcher, error) {
	if client == nil || client.Client == nil {
		return nil, fmt.Errorf("fetcher: nil GitHub client")
	}
	if pacer == nil {
		return nil, fmt.Errorf("fetcher: nil pacer")
	}
	if budget == nil {
		budget = ratelimit.NewBudget()
	}
	f := &Fetcher{
		client: client,
		pacer:  pacer,
		budget: budget,
		logger: zap.NewNop(),
		window: DefaultRecentWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f, nil
}

// Enrich runs the four fetch steps for one item and always returns a record.
// The first failing step stops the sequence; fields gathered before it are
// kept and the record's error describes the failure.
func (f *Fetcher) Enrich(ctx context.Context, item worklist.Item, target resolve.Target) record.Record {
	rec := record.New(item.ID, item.Reference, target.Owner, target.Name)

	steps := []struct {
		name string
		run  func(context.Context, resolve.Target, *record.Record) error
	}{
		{StepSummary, f.fetchSummary},
		{StepContributors, f.fetchContributors},
		{StepRecentCommits, f.fetchRecentCommits},
		{StepTotalCommits, f.fetchTotalCommits},
	}
	for _, s := range steps {
		if err := s.run(ctx, target, &rec); err != nil {
			f.logger.Debug("fetch step failed",
				zap.Int64("id", item.ID), zap.String("repo", target.String()),
				zap.String("step", s.name), zap.Error(err))
			rec.SetError(err.Error())
			break
		}
	}
	return rec
}

// call paces and budgets one API request and classifies its failure.
func (f *Fetcher) call(ctx context.Context, step string, do func() (*github.Response, error)) error {
	if err := f.pacer.Wait(ctx); err != nil {
		return &UnknownError{Step: step, Err: err}
	}
	if err := f.budget.Acquire(ctx); err != nil {
		return &UnknownError{Step: step, Err: err}
	}
	defer f.budget.Release()

	resp, err := do()
	code := 0
	if resp != nil && resp.Response != nil {
		code = resp.StatusCode
		f.budget.Observe(resp.Response)
	}
	f.metrics.Request(step, code)
	if err != nil {
		return classify(step, err, resp)
	}
	return nil
}

func (f *Fetcher) fetchSummary(ctx context.Context, t resolve.Target, rec *record.Record) error {
	var repo *github.Repository
	err := f.call(ctx, StepSummary, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		repo, resp, err = f.client.Client.Repositories.Get(ctx, t.Owner, t.Name)
		return resp, err
	})
	if err != nil {
		return err
	}

	rec.Stargazers = record.Int(repo.GetStargazersCount())
	rec.Forks = record.Int(repo.GetForksCount())
	rec.OpenIssues = record.Int(repo.GetOpenIssuesCount())
	if repo.CreatedAt != nil {
		ts := repo.CreatedAt.UTC()
		rec.CreatedAt = &ts
	}
	if repo.PushedAt != nil {
		ts := repo.PushedAt.UTC()
		rec.PushedAt = &ts
	}
	return nil
}

// fetchContributors walks every page; GitHub returns contributors ordered by
// descending contribution count.
func (f *Fetcher) fetchContributors(ctx context.Context, t resolve.Target, rec *record.Record) error {
	opts := &github.ListContributorsOptions{ListOptions: github.ListOptions{PerPage: contributorsPerPage}}
	var all []record.Contributor
	for {
		var page []*github.Contributor
		var next int
		err := f.call(ctx, StepContributors, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = f.client.Client.Repositories.ListContributors(ctx, t.Owner, t.Name, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return err
		}
		for _, c := range page {
			all = append(all, record.Contributor{Login: c.GetLogin(), Contributions: c.GetContributions()})
		}
		if next == 0 {
			break
		}
		opts.Page = next
	}
	if all != nil {
		rec.Contributors = all
	}
	return nil
}

func (f *Fetcher) fetchRecentCommits(ctx context.Context, t resolve.Target, rec *record.Record) error {
	since := f.now().UTC().Add(-f.window)
	n, err := f.countCommits(ctx, StepRecentCommits, t, since)
	if err != nil {
		return err
	}
	rec.RecentCommits = record.Int(n)
	return nil
}

func (f *Fetcher) fetchTotalCommits(ctx context.Context, t resolve.Target, rec *record.Record) error {
	n, err := f.countCommits(ctx, StepTotalCommits, t, time.Time{})
	if err != nil {
		return err
	}
	rec.TotalCommits = record.Int(n)
	return nil
}

// countCommits asks for one commit per page and reads the count off the
// last-page link, so the cost is a single request however long the history.
func (f *Fetcher) countCommits(ctx context.Context, step string, t resolve.Target, since time.Time) (int, error) {
	opts := &github.CommitsListOptions{Since: since, ListOptions: github.ListOptions{PerPage: 1}}
	var count int
	err := f.call(ctx, step, func() (*github.Response, error) {
		commits, resp, err := f.client.Client.Repositories.ListCommits(ctx, t.Owner, t.Name, opts)
		if err != nil {
			return resp, err
		}
		count = len(commits)
		if resp != nil && resp.LastPage > 0 {
			count = resp.LastPage
		}
		return resp, nil
	})
	return count, err
}
