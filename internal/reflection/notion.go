package reflection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/time/rate"
)

const (
	// DefaultNotionURL is the base URL for the Notion API.
	DefaultNotionURL = "https://api.notion.com"

	// NotionVersion is sent with every request.
	NotionVersion = "2022-06-28"

	// DefaultNotionTimeout is the default HTTP timeout.
	DefaultNotionTimeout = 30 * time.Second

	// notionRateLimit is the documented average request rate.
	notionRateLimit = 3

	// Notion request limits
	maxBlocksPerPage = 100
	maxRichText      = 2000

	titleProperty = "Name"
)

// NotionPublisher creates report pages in a Notion database.
type NotionPublisher struct {
	baseURL    string
	token      string
	databaseID string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NotionOption configures the NotionPublisher.
type NotionOption func(*NotionPublisher)

// WithNotionBaseURL sets a custom base URL.
func WithNotionBaseURL(baseURL string) NotionOption {
	return func(p *NotionPublisher) {
		if baseURL != "" {
			p.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithNotionHTTPClient sets a custom HTTP client.
func WithNotionHTTPClient(httpClient *http.Client) NotionOption {
	return func(p *NotionPublisher) {
		p.httpClient = httpClient
	}
}

// NewNotionPublisher creates a publisher for databaseID.
func NewNotionPublisher(token, databaseID string, opts ...NotionOption) *NotionPublisher {
	p := &NotionPublisher{
		baseURL:    DefaultNotionURL,
		token:      token,
		databaseID: databaseID,
		httpClient: &http.Client{
			Timeout: DefaultNotionTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(notionRateLimit), notionRateLimit),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NotionAPIError is an error response from the Notion API.
type NotionAPIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *NotionAPIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion API error: %s (status %d, code %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("notion API error: %s (status %d)", e.Message, e.StatusCode)
}

type notionRichText struct {
	Type string `json:"type"`
	Text struct {
		Content string      `json:"content"`
		Link    *notionLink `json:"link,omitempty"`
	} `json:"text"`
}

type notionLink struct {
	URL string `json:"url"`
}

type notionTextBlock struct {
	RichText []notionRichText `json:"rich_text"`
}

// notionBlock holds exactly one of the typed payloads, matching Type.
type notionBlock struct {
	Object   string           `json:"object"`
	Type     string           `json:"type"`
	Heading1 *notionTextBlock `json:"heading_1,omitempty"`
	Heading2 *notionTextBlock `json:"heading_2,omitempty"`
	Heading3 *notionTextBlock `json:"heading_3,omitempty"`
	Para     *notionTextBlock `json:"paragraph,omitempty"`
	Bullet   *notionTextBlock `json:"bulleted_list_item,omitempty"`
}

type createPageRequest struct {
	Parent struct {
		DatabaseID string `json:"database_id"`
	} `json:"parent"`
	Properties map[string]any `json:"properties"`
	Children   []notionBlock  `json:"children,omitempty"`
}

type createPageResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Publish creates a page titled title holding the Markdown body and returns
// the page URL.
func (p *NotionPublisher) Publish(ctx context.Context, title, md string) (string, error) {
	var reqBody createPageRequest
	reqBody.Parent.DatabaseID = p.databaseID
	reqBody.Properties = map[string]any{
		titleProperty: map[string]any{
			"title": []notionRichText{plainText(title)},
		},
	}
	reqBody.Children = markdownToBlocks(md)

	var resp createPageResponse
	if err := p.post(ctx, "/v1/pages", reqBody, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("notion response did not include a page url")
	}
	return resp.URL, nil
}

// post performs a JSON POST request to the API.
func (p *NotionPublisher) post(ctx context.Context, path string, body, result any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Notion-Version", NotionVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &NotionAPIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var parsed struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func plainText(s string) notionRichText {
	var rt notionRichText
	rt.Type = "text"
	rt.Text.Content = truncate(s, maxRichText)
	return rt
}

func linkText(s, url string) notionRichText {
	rt := plainText(s)
	rt.Text.Link = &notionLink{URL: url}
	return rt
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// markdownToBlocks maps the report's headings, paragraphs and list items to
// Notion blocks. Anything past the per-request block limit is dropped.
func markdownToBlocks(md string) []notionBlock {
	source := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var blocks []notionBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if len(blocks) >= maxBlocksPerPage {
			return ast.WalkStop, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			content := &notionTextBlock{RichText: richText(node, source)}
			block := notionBlock{Object: "block"}
			switch node.Level {
			case 1:
				block.Type, block.Heading1 = "heading_1", content
			case 2:
				block.Type, block.Heading2 = "heading_2", content
			default:
				block.Type, block.Heading3 = "heading_3", content
			}
			blocks = append(blocks, block)
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			blocks = append(blocks, notionBlock{
				Object: "block",
				Type:   "bulleted_list_item",
				Bullet: &notionTextBlock{RichText: richText(node, source)},
			})
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			blocks = append(blocks, notionBlock{
				Object: "block",
				Type:   "paragraph",
				Para:   &notionTextBlock{RichText: richText(node, source)},
			})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

// richText flattens inline content, keeping links.
func richText(n ast.Node, source []byte) []notionRichText {
	var out []notionRichText
	var plain strings.Builder

	flush := func() {
		if plain.Len() > 0 {
			out = append(out, plainText(plain.String()))
			plain.Reset()
		}
	}

	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Link:
				flush()
				out = append(out, linkText(inlineText(node, source), string(node.Destination)))
			case *ast.Text:
				plain.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					plain.WriteByte(' ')
				}
			case *ast.String:
				plain.Write(node.Value)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	flush()
	return out
}

// inlineText returns the concatenated text below n.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				buf.Write(node.Segment.Value(source))
			case *ast.String:
				buf.Write(node.Value)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return buf.String()
}
