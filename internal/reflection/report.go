package reflection

import (
	"bytes"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"github.com/harrison/reflector/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Report is the weekly reflection document.
type Report struct {
	Range        models.DateRange
	PullRequests []PullRequest
	TimeEntries  []TimeEntry
}

// Title is used as the page title and local file heading.
func (r *Report) Title() string {
	return fmt.Sprintf("Reflection %s to %s", r.Range.Start.Format(dateLayout), r.Range.End.Format(dateLayout))
}

// Summary returns the headline numbers.
func (r *Report) Summary() models.ReflectionSummary {
	return models.ReflectionSummary{
		PRCount:        len(r.PullRequests),
		TotalWorkHours: TotalHours(r.TimeEntries),
	}
}

// Markdown renders the report.
func (r *Report) Markdown() string {
	var b strings.Builder
	summary := r.Summary()

	fmt.Fprintf(&b, "# %s\n\n", r.Title())

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Pull requests: %d\n", summary.PRCount)
	fmt.Fprintf(&b, "- Work hours: %s\n", formatHours(summary.TotalWorkHours))
	fmt.Fprintf(&b, "- Repositories: %d\n\n", len(r.byRepository()))

	b.WriteString("## Pull Requests\n\n")
	if len(r.PullRequests) == 0 {
		b.WriteString("No pull requests in this period.\n\n")
	}
	for _, group := range r.byRepository() {
		fmt.Fprintf(&b, "### %s\n\n", group.repo)
		for _, pr := range group.prs {
			fmt.Fprintf(&b, "- [#%d %s](%s) (%s, %s)\n",
				pr.Number, escapeMarkdown(pr.Title), pr.URL, pr.State, pr.CreatedAt.Format(dateLayout))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Time Log\n\n")
	if len(r.TimeEntries) == 0 {
		b.WriteString("No time tracked in this period.\n\n")
	}
	for _, e := range r.TimeEntries {
		if e.Note != "" {
			fmt.Fprintf(&b, "- %s: %sh, %s\n", e.Date, formatHours(e.Hours), escapeMarkdown(e.Note))
		} else {
			fmt.Fprintf(&b, "- %s: %sh\n", e.Date, formatHours(e.Hours))
		}
	}
	if len(r.TimeEntries) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Reflection\n\n")
	b.WriteString("- What went well?\n")
	b.WriteString("- What could be improved?\n")
	b.WriteString("- Focus for next week\n")

	return b.String()
}

type repoGroup struct {
	repo string
	prs  []PullRequest
}

// byRepository groups pull requests by repository, sorted by name.
func (r *Report) byRepository() []repoGroup {
	index := make(map[string]int)
	var groups []repoGroup
	for _, pr := range r.PullRequests {
		i, ok := index[pr.Repository]
		if !ok {
			i = len(groups)
			index[pr.Repository] = i
			groups = append(groups, repoGroup{repo: pr.Repository})
		}
		groups[i].prs = append(groups[i].prs, pr)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].repo < groups[j].repo })
	return groups
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"[", `\[`,
	"]", `\]`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// markdown renders reports with the GitHub-flavoured extensions.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts report Markdown into a standalone HTML document.
func RenderHTML(title, md string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
