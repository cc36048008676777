package reflection

import (
	"strings"
	"testing"
	"time"

	"github.com/harrison/reflector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		Range: models.DateRange{
			Start: time.Date(2026, 10, 9, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		},
		PullRequests: []PullRequest{
			{Number: 7, Title: "Fix [flaky] test_runner", URL: "https://github.com/acme/web/pull/7", Repository: "acme/web", State: "open", CreatedAt: time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
			{Number: 3, Title: "Add retries", URL: "https://github.com/acme/api/pull/3", Repository: "acme/api", State: "closed", CreatedAt: time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)},
		},
		TimeEntries: []TimeEntry{
			{Date: "2026-10-10", Hours: 3.5, Note: "code review"},
			{Date: "2026-10-13", Hours: 9},
		},
	}
}

func TestReport_Summary(t *testing.T) {
	s := sampleReport().Summary()
	assert.Equal(t, 2, s.PRCount)
	assert.Equal(t, 12.5, s.TotalWorkHours)
}

func TestReport_Markdown(t *testing.T) {
	md := sampleReport().Markdown()

	assert.True(t, strings.HasPrefix(md, "# Reflection 2026-10-09 to 2026-10-16\n"))
	assert.Contains(t, md, "- Pull requests: 2\n")
	assert.Contains(t, md, "- Work hours: 12.5\n")
	assert.Contains(t, md, "- Repositories: 2\n")
	assert.Contains(t, md, "- [#3 Add retries](https://github.com/acme/api/pull/3) (closed, 2026-10-10)\n")
	assert.Contains(t, md, `Fix \[flaky\] test\_runner`)
	assert.Contains(t, md, "- 2026-10-10: 3.5h, code review\n")
	assert.Contains(t, md, "- 2026-10-13: 9h\n")

	// Repositories are listed alphabetically
	assert.Less(t, strings.Index(md, "### acme/api"), strings.Index(md, "### acme/web"))
}

func TestReport_MarkdownEmpty(t *testing.T) {
	r := &Report{Range: sampleReport().Range}
	md := r.Markdown()

	assert.Contains(t, md, "No pull requests in this period.")
	assert.Contains(t, md, "No time tracked in this period.")
	assert.Contains(t, md, "- Work hours: 0\n")
}

func TestRenderHTML(t *testing.T) {
	report := sampleReport()
	html, err := RenderHTML(report.Title(), report.Markdown())
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Reflection 2026-10-09 to 2026-10-16</title>")
	assert.Contains(t, html, "<h1>Reflection 2026-10-09 to 2026-10-16</h1>")
	assert.Contains(t, html, `<a href="https://github.com/acme/api/pull/3">#3 Add retries</a>`)
	assert.Contains(t, html, "Fix [flaky] test_runner")
}

func TestRenderHTML_EscapesTitle(t *testing.T) {
	html, err := RenderHTML("<script>", "text")
	require.NoError(t, err)
	assert.Contains(t, html, "<title>&lt;script&gt;</title>")
}
