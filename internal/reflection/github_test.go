package reflection

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func issueJSON(n int, repo string) string {
	return fmt.Sprintf(`{
		"number": %d,
		"title": "Change %d",
		"state": "closed",
		"html_url": "https://github.com/%s/pull/%d",
		"repository_url": "https://api.github.com/repos/%s",
		"created_at": "2026-10-1%dT10:00:00Z",
		"pull_request": {"url": "https://api.github.com/repos/%s/pulls/%d"}
	}`, n, n, repo, n, repo, n%10, repo, n)
}

func newTestCollector(t *testing.T, handler http.HandlerFunc) *GitHubCollector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewGitHubCollector("ghp_test", "octocat", server.URL, WithSearchRateLimit(rate.Inf, 1))
	require.NoError(t, err)
	return c
}

func TestSearchQuery(t *testing.T) {
	from := time.Date(2026, 10, 9, 18, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "author:octocat type:pr created:2026-10-09..2026-10-16", searchQuery("octocat", from, to))
}

func TestGitHubCollector_Paginates(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
		auth    string
	)
	var serverURL string
	c := newTestCollector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/issues", r.URL.Path)
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		auth = r.Header.Get("Authorization")
		mu.Unlock()

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case 0, 1:
			w.Header().Set("Link", fmt.Sprintf(`<%s/search/issues?q=x&page=2>; rel="next", <%s/search/issues?q=x&page=2>; rel="last"`, serverURL, serverURL))
			fmt.Fprintf(w, `{"total_count": 3, "items": [%s, %s]}`, issueJSON(1, "acme/api"), issueJSON(2, "acme/web"))
		case 2:
			fmt.Fprintf(w, `{"total_count": 3, "items": [%s]}`, issueJSON(3, "acme/api"))
		default:
			t.Errorf("unexpected page %d", page)
		}
	})
	serverURL = c.client.BaseURL.String()
	serverURL = serverURL[:len(serverURL)-1]

	from := time.Date(2026, 10, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	prs, err := c.PullRequests(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, prs, 3)
	assert.Equal(t, 1, prs[0].Number)
	assert.Equal(t, "Change 1", prs[0].Title)
	assert.Equal(t, "acme/api", prs[0].Repository)
	assert.Equal(t, "https://github.com/acme/api/pull/1", prs[0].URL)
	assert.Equal(t, "closed", prs[0].State)
	assert.Equal(t, time.Date(2026, 10, 11, 10, 0, 0, 0, time.UTC), prs[0].CreatedAt)
	assert.Equal(t, "acme/web", prs[1].Repository)
	assert.Equal(t, 3, prs[2].Number)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, queries, 2)
	assert.Equal(t, "author:octocat type:pr created:2026-10-09..2026-10-16", queries[0])
	assert.Equal(t, "Bearer ghp_test", auth)
}

func TestGitHubCollector_Empty(t *testing.T) {
	c := newTestCollector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total_count": 0, "items": []}`)
	})

	prs, err := c.PullRequests(context.Background(), time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	assert.Empty(t, prs)
}

func TestGitHubCollector_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Limit", "30")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
			},
			wantErr: "rate limited",
		},
		{
			name: "validation failed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				fmt.Fprint(w, `{"message": "Validation Failed"}`)
			},
			wantErr: "422",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: "502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCollector(t, tt.handler)
			_, err := c.PullRequests(context.Background(), time.Now().AddDate(0, 0, -7), time.Now())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGitHubCollector_ContextCancelled(t *testing.T) {
	c := newTestCollector(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})
	c.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	c.limiter.Allow() // drain the only token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.PullRequests(ctx, time.Now().AddDate(0, 0, -7), time.Now())
	assert.Error(t, err)
}

func TestRepositoryName(t *testing.T) {
	assert.Equal(t, "acme/api", repositoryName("https://api.github.com/repos/acme/api"))
	assert.Equal(t, "acme/api", repositoryName("https://ghe.example/api/v3/repos/acme/api"))
	assert.Equal(t, "", repositoryName(""))
}
