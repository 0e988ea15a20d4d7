// Package remote provides client functionality for communicating with the
// spec generation API.
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/zstd"

	"specsync/internal/specs"
)

// DefaultServer is the production API URL. Used when no explicit api_url is
// configured; can be overridden via the SPECSYNC_SERVER environment variable.
const DefaultServer = "https://api.specsync.dev"

// Generator produces spec content from diffs. The HTTP client implements it;
// tests substitute their own.
type Generator interface {
	UpdateSpec(entry specs.Entry, diff, context string) (specs.Entry, error)
	SuggestSpecs(pagePath, diff, context string) ([]specs.Entry, error)
}

// Client communicates with the generation and sync API.
type Client struct {
	BaseURL    string
	APIKey     string
	ProjectID  string
	HTTPClient *http.Client
}

// NewClient creates a client for the given server, key and project.
func NewClient(baseURL, apiKey, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		ProjectID: projectID,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Wire types ---

// UpdateSpecRequest asks the API to rewrite one spec against a diff.
type UpdateSpecRequest struct {
	TestCase specs.Entry `json:"test_case"`
	GitDiff  string      `json:"git_diff"`
	Context  string      `json:"context,omitempty"`
}

// UpdateSpecResponse carries the rewritten spec.
type UpdateSpecResponse struct {
	TestCase specs.Entry `json:"test_case"`
}

// SuggestSpecRequest asks the API for new specs covering an uncovered page.
type SuggestSpecRequest struct {
	PagePath string `json:"page_path"`
	GitDiff  string `json:"git_diff"`
	Context  string `json:"context,omitempty"`
}

// SuggestSpecResponse carries the suggested specs.
type SuggestSpecResponse struct {
	TestCases []specs.Entry `json:"test_cases"`
}

// PageDiff is one changed page with its diff, sent for agent assignment.
type PageDiff struct {
	Page string `json:"page"`
	Diff string `json:"diff"`
}

// AgentAssignmentsRequest asks which destructive agents to run per page.
type AgentAssignmentsRequest struct {
	Pages []PageDiff `json:"pages"`
}

// PageAgents lists the agents assigned to one page.
type PageAgents struct {
	Page   string   `json:"page"`
	Agents []string `json:"agents"`
}

// AgentAssignmentsResponse carries per-page agent assignments.
type AgentAssignmentsResponse struct {
	PageAgents []PageAgents `json:"page_agents"`
}

// SyncPayload is the spec snapshot exchanged with the sync endpoints: file
// content keyed by root-relative path.
type SyncPayload struct {
	Branch string            `json:"branch"`
	Files  map[string]string `json:"files"`
}

// DeleteSpecsRequest names remote spec files to remove.
type DeleteSpecsRequest struct {
	Files []string `json:"files"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// --- API methods ---

// UpdateSpec sends an outdated spec with the diff that touched its page and
// returns the rewritten spec. The context string carries the page's other
// specs so the rewrite does not drift into their coverage.
func (c *Client) UpdateSpec(entry specs.Entry, diff, context string) (specs.Entry, error) {
	body, err := json.Marshal(UpdateSpecRequest{TestCase: entry, GitDiff: diff, Context: context})
	if err != nil {
		return specs.Entry{}, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.send("PUT", "/api/v1/test-cases", body)
	if err != nil {
		return specs.Entry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return specs.Entry{}, c.parseError(resp)
	}

	var result UpdateSpecResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return specs.Entry{}, fmt.Errorf("decoding response: %w", err)
	}
	return result.TestCase, nil
}

// SuggestSpecs asks for new specs covering a page that has none.
func (c *Client) SuggestSpecs(pagePath, diff, context string) ([]specs.Entry, error) {
	body, err := json.Marshal(SuggestSpecRequest{PagePath: pagePath, GitDiff: diff, Context: context})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.send("POST", "/api/v1/test-cases/new", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result SuggestSpecResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result.TestCases, nil
}

// AgentAssignments asks which destructive agents should target each changed
// page.
func (c *Client) AgentAssignments(pages []PageDiff) ([]PageAgents, error) {
	body, err := json.Marshal(AgentAssignmentsRequest{Pages: pages})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.send("POST", "/api/v1/destructive/agents", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result AgentAssignmentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result.PageAgents, nil
}

// PullSpecs fetches the remote spec snapshot for a branch.
func (c *Client) PullSpecs(branch string) (*SyncPayload, error) {
	path := "/api/v1/sync/" + url.PathEscape(c.ProjectID)
	if branch != "" {
		path += "?branch=" + url.QueryEscape(branch)
	}

	resp, err := c.send("GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &SyncPayload{Branch: branch, Files: map[string]string{}}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result SyncPayload
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if result.Files == nil {
		result.Files = map[string]string{}
	}
	return &result, nil
}

// PushSpecs uploads the local spec snapshot. The payload is zstd-compressed;
// spec trees are repetitive YAML and compress well.
func (c *Client) PushSpecs(payload *SyncPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}
	if _, err := encoder.Write(raw); err != nil {
		encoder.Close()
		return fmt.Errorf("compressing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}

	req, err := http.NewRequest("PUT", c.BaseURL+"/api/v1/sync/"+url.PathEscape(c.ProjectID), &compressed)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "zstd")
	c.auth(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// DeleteSpecs removes spec files from the remote snapshot.
func (c *Client) DeleteSpecs(files []string) error {
	if len(files) == 0 {
		return nil
	}
	body, err := json.Marshal(DeleteSpecsRequest{Files: files})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.send("POST", "/api/v1/sync/"+url.PathEscape(c.ProjectID)+"/delete", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// --- Helper methods ---

func (c *Client) send(method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.auth(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

func (c *Client) auth(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if errResp.Details != "" {
			return fmt.Errorf("%s: %s", errResp.Error, errResp.Details)
		}
		return fmt.Errorf("%s", errResp.Error)
	}
	return fmt.Errorf("server error: %d %s", resp.StatusCode, string(body))
}
