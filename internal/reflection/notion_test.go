package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotionPublisher_Publish(t *testing.T) {
	var got struct {
		Parent struct {
			DatabaseID string `json:"database_id"`
		} `json:"parent"`
		Properties map[string]map[string][]map[string]any `json:"properties"`
		Children   []map[string]any                       `json:"children"`
	}
	var headers http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/pages", r.URL.Path)
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"object": "page", "id": "p-1", "url": "https://www.notion.so/Reflection-p1"}`)
	}))
	defer server.Close()

	p := NewNotionPublisher("secret_abc", "db-123", WithNotionBaseURL(server.URL+"/"))
	url, err := p.Publish(context.Background(), "Reflection 2026-10-09 to 2026-10-16", sampleReport().Markdown())
	require.NoError(t, err)

	assert.Equal(t, "https://www.notion.so/Reflection-p1", url)
	assert.Equal(t, "Bearer secret_abc", headers.Get("Authorization"))
	assert.Equal(t, NotionVersion, headers.Get("Notion-Version"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))

	assert.Equal(t, "db-123", got.Parent.DatabaseID)
	title := got.Properties["Name"]["title"]
	require.Len(t, title, 1)
	assert.Equal(t, "Reflection 2026-10-09 to 2026-10-16", title[0]["text"].(map[string]any)["content"])

	require.NotEmpty(t, got.Children)
	assert.Equal(t, "heading_1", got.Children[0]["type"])
}

func TestNotionPublisher_APIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "structured error",
			status:   http.StatusBadRequest,
			body:     `{"object":"error","status":400,"code":"validation_error","message":"Name is not a property that exists."}`,
			wantCode: "validation_error",
			wantMsg:  "Name is not a property that exists.",
		},
		{
			name:    "plain body",
			status:  http.StatusBadGateway,
			body:    "bad gateway",
			wantMsg: "bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewNotionPublisher("t", "db", WithNotionBaseURL(server.URL)).Publish(context.Background(), "x", "body")
			require.Error(t, err)

			apiErr, ok := err.(*NotionAPIError)
			require.True(t, ok, "expected *NotionAPIError, got %T", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestNotionPublisher_MissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "p-1"}`)
	}))
	defer server.Close()

	_, err := NewNotionPublisher("t", "db", WithNotionBaseURL(server.URL)).Publish(context.Background(), "x", "body")
	assert.Error(t, err)
}

func TestMarkdownToBlocks(t *testing.T) {
	md := "# Title\n\n## Section\n\nSome text.\n\n### Sub\n\n- [#3 Add retries](https://github.com/acme/api/pull/3) (closed)\n- plain item\n"
	blocks := markdownToBlocks(md)

	types := make([]string, len(blocks))
	for i, b := range blocks {
		types[i] = b.Type
	}
	assert.Equal(t, []string{"heading_1", "heading_2", "paragraph", "heading_3", "bulleted_list_item", "bulleted_list_item"}, types)

	assert.Equal(t, "Title", blocks[0].Heading1.RichText[0].Text.Content)
	assert.Equal(t, "Some text.", blocks[2].Para.RichText[0].Text.Content)

	link := blocks[4].Bullet.RichText
	require.Len(t, link, 2)
	assert.Equal(t, "#3 Add retries", link[0].Text.Content)
	require.NotNil(t, link[0].Text.Link)
	assert.Equal(t, "https://github.com/acme/api/pull/3", link[0].Text.Link.URL)
	assert.Equal(t, " (closed)", link[1].Text.Content)
	assert.Nil(t, link[1].Text.Link)
}

func TestMarkdownToBlocks_Limits(t *testing.T) {
	var b strings.Builder
	for i := 0; i < maxBlocksPerPage+20; i++ {
		fmt.Fprintf(&b, "- item %d\n", i)
	}
	assert.Len(t, markdownToBlocks(b.String()), maxBlocksPerPage)

	long := strings.Repeat("x", maxRichText+10)
	blocks := markdownToBlocks(long)
	require.Len(t, blocks, 1)
	assert.Len(t, blocks[0].Para.RichText[0].Text.Content, maxRichText)
}
