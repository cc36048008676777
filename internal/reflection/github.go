package reflection

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// searchPerPage is the largest page the search API serves.
	searchPerPage = 100

	// maxSearchPages caps pagination; the search API stops at 1000 results.
	maxSearchPages = 10

	// searchRateLimit paces search requests (the authenticated search
	// quota is 30 per minute).
	searchRateLimit = rate.Limit(0.5)
)

// PullRequest is a pull request authored in the reporting period.
type PullRequest struct {
	Number     int
	Title      string
	URL        string
	Repository string
	State      string
	CreatedAt  time.Time
}

// GitHubCollector finds pull requests through the issue search API.
type GitHubCollector struct {
	client   *github.Client
	username string
	limiter  *rate.Limiter
}

// GitHubOption configures a GitHubCollector.
type GitHubOption func(*GitHubCollector)

// WithSearchRateLimit overrides request pacing.
func WithSearchRateLimit(limit rate.Limit, burst int) GitHubOption {
	return func(c *GitHubCollector) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// NewGitHubCollector creates a collector authenticated with token. An empty
// apiURL uses the public API.
func NewGitHubCollector(token, username, apiURL string, opts ...GitHubOption) (*GitHubCollector, error) {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	client := github.NewClient(httpClient)

	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		base, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = base
	}

	c := &GitHubCollector{
		client:   client,
		username: username,
		limiter:  rate.NewLimiter(searchRateLimit, 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// searchQuery builds the issue search query for the range.
func searchQuery(username string, from, to time.Time) string {
	return fmt.Sprintf("author:%s type:pr created:%s..%s",
		username, from.Format(dateLayout), to.Format(dateLayout))
}

// PullRequests returns the user's pull requests created within the range,
// oldest first.
func (c *GitHubCollector) PullRequests(ctx context.Context, from, to time.Time) ([]PullRequest, error) {
	opts := &github.SearchOptions{
		Sort:        "created",
		Order:       "asc",
		ListOptions: github.ListOptions{PerPage: searchPerPage},
	}
	query := searchQuery(c.username, from, to)

	var prs []PullRequest
	for page := 0; page < maxSearchPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		result, resp, err := c.client.Search.Issues(ctx, query, opts)
		if err != nil {
			return nil, describeGitHubError(err)
		}

		for _, issue := range result.Issues {
			prs = append(prs, PullRequest{
				Number:     issue.GetNumber(),
				Title:      issue.GetTitle(),
				URL:        issue.GetHTMLURL(),
				Repository: repositoryName(issue.GetRepositoryURL()),
				State:      issue.GetState(),
				CreatedAt:  issue.GetCreatedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return prs, nil
}

// repositoryName turns ".../repos/owner/name" into "owner/name".
func repositoryName(repoURL string) string {
	idx := strings.Index(repoURL, "/repos/")
	if idx < 0 {
		return repoURL
	}
	return repoURL[idx+len("/repos/"):]
}

func describeGitHubError(err error) error {
	switch e := err.(type) {
	case *github.RateLimitError:
		return fmt.Errorf("rate limited until %s", e.Rate.Reset.Time.Format(time.RFC3339))
	case *github.AbuseRateLimitError:
		return fmt.Errorf("rate limited: %s", e.Message)
	case *github.ErrorResponse:
		if e.Response != nil {
			return fmt.Errorf("github search failed (%d): %s", e.Response.StatusCode, e.Message)
		}
	}
	return fmt.Errorf("github search failed: %w", err)
}
