package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
)

// webSearchResult is the trimmed search-result shape CORE's assistant
// node surfaces to the LLM.
type webSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type braveSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// webSearchTool queries the Brave Search API.
type webSearchTool struct {
	baseTool
	httpClient *http.Client
	apiKey     string
}

type webSearchInput struct {
	Query       string `json:"query"`
	ResultCount int    `json:"result_count,omitempty"`
}

func (t *webSearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in webSearchInput
	if err := t.validate(args, &in); err != nil {
		return "", err
	}
	if t.apiKey == "" {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeConfigurationErr, Message: "web search API key not configured"}
	}
	count := in.ResultCount
	if count == 0 {
		count = 5
	}

	client := t.httpClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	q := url.Values{}
	q.Set("q", in.Query)
	q.Set("count", fmt.Sprintf("%d", count))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.search.brave.com/res/v1/web/search?"+q.Encode(), nil)
	if err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeUnexpectedError, Message: err.Error()}
	}
	req.Header.Set("X-Subscription-Token", t.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeNetworkError, Message: "search request failed", Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeAPIError, Message: fmt.Sprintf("search backend returned %d", resp.StatusCode)}
	}

	var parsed braveSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeUnexpectedError, Message: "decode search response: " + err.Error()}
	}

	results := make([]webSearchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, webSearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	if len(results) == 0 {
		return "no results found", nil
	}
	out, err := json.Marshal(results)
	if err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeUnexpectedError, Message: err.Error()}
	}
	return string(out), nil
}
