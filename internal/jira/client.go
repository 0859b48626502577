package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/planforge-io/planforge/pkg/schema"
)

var (
	// ErrInvalidKey is returned for ticket keys that don't match PROJECT-123.
	ErrInvalidKey = errors.New("jira: invalid ticket key")
	// ErrUpstream wraps transport and non-2xx failures from the tracker.
	ErrUpstream = errors.New("jira: upstream request failed")
)

var keyPattern = regexp.MustCompile(`^[A-Z]+-\d+$`)

// ValidKey reports whether key matches the PROJECT-123 ticket key format.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Config holds tracker connection settings.
type Config struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	APIToken string `json:"api_token"`
}

// Client is a Jira REST v3 client. It only needs the two calls the
// generation pipeline consumes: current-user lookup and issue fetch.
type Client struct {
	baseURL  string
	username string
	apiToken string
	client   *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.client = c }
}

// NewClient creates a tracker client from connection settings.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured tracker base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// UserInfo is the identity payload returned by the tracker for the
// authenticated user.
type UserInfo struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// TestConnection verifies credentials by fetching the current user.
func (c *Client) TestConnection(ctx context.Context) (*UserInfo, error) {
	body, err := c.get(ctx, "/rest/api/3/myself", nil)
	if err != nil {
		return nil, err
	}
	var user UserInfo
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("jira: parse user: %w", err)
	}
	return &user, nil
}

// GetIssue fetches an issue by key and maps it to the canonical Issue model.
// The key is validated before any network call.
func (c *Client) GetIssue(ctx context.Context, key string) (*schema.Issue, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: %q (expected format PROJECT-123)", ErrInvalidKey, key)
	}

	params := url.Values{}
	params.Set("fields", "summary,description,issuetype,priority,status,assignee,labels,components,attachment")
	body, err := c.get(ctx, "/rest/api/3/issue/"+key, params)
	if err != nil {
		return nil, err
	}

	var resp issueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("jira: parse issue %s: %w", key, err)
	}
	return parseIssue(&resp), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("jira: create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, truncate(string(body), 512))
	}
	return body, nil
}

// --- Jira wire format types ---

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		IssueType   namedField      `json:"issuetype"`
		Priority    namedField      `json:"priority"`
		Status      namedField      `json:"status"`
		Assignee    *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Labels     []string     `json:"labels"`
		Components []namedField `json:"components"`
		Attachment []struct {
			Filename string `json:"filename"`
			MimeType string `json:"mimeType"`
			Content  string `json:"content"`
		} `json:"attachment"`
	} `json:"fields"`
}

type namedField struct {
	Name string `json:"name"`
}

func parseIssue(resp *issueResponse) *schema.Issue {
	fields := &resp.Fields

	description := FlattenADF(fields.Description)

	assignee := ""
	if fields.Assignee != nil {
		assignee = fields.Assignee.DisplayName
	}

	priority := fields.Priority.Name
	if priority == "" {
		priority = "Medium"
	}

	components := make([]string, 0, len(fields.Components))
	for _, comp := range fields.Components {
		components = append(components, comp.Name)
	}

	attachments := make([]schema.Attachment, 0, len(fields.Attachment))
	for _, att := range fields.Attachment {
		attachments = append(attachments, schema.Attachment{
			Filename: att.Filename,
			MimeType: att.MimeType,
			Content:  att.Content,
		})
	}

	labels := fields.Labels
	if labels == nil {
		labels = []string{}
	}

	return &schema.Issue{
		Key:                resp.Key,
		Summary:            fields.Summary,
		Description:        description,
		IssueType:          fields.IssueType.Name,
		Priority:           priority,
		Status:             fields.Status.Name,
		Assignee:           assignee,
		Labels:             labels,
		Components:         components,
		AcceptanceCriteria: ExtractAcceptanceCriteria(description),
		Attachments:        attachments,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
