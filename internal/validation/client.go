package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	api "github.com/sitescan/sitescan/api/v1alpha1"
)

const (
	DefaultEndpoint = "https://validator.w3.org/nu/"
	DefaultTimeout  = 60 * time.Second
)

// Result is the normalized outcome of validating one URL.
type Result struct {
	URL       string
	Errors    []api.ValidationMessage
	Warnings  []api.ValidationMessage
	IsValid   bool
	CheckedAt time.Time
}

// nuMessage mirrors the validator's wire format. Fields may be absent;
// decoding tolerates anything it does not recognize.
type nuMessage struct {
	Type        string `json:"type"`
	SubType     string `json:"subType"`
	Message     string `json:"message"`
	FirstLine   int    `json:"firstLine"`
	LastLine    int    `json:"lastLine"`
	FirstColumn int    `json:"firstColumn"`
	LastColumn  int    `json:"lastColumn"`
	Extract     string `json:"extract"`
}

type nuResponse struct {
	Messages []nuMessage `json:"messages"`
}

// Client calls the external markup-validation service for one URL at a time.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		endpoint: DefaultEndpoint,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateOne asks the validator about a single URL. A transport failure or a
// non-2xx reply is returned as an error; it is never folded into an "invalid
// page" result, because "the page has markup errors" and "we could not ask
// the validator" are different answers.
func (c *Client) ValidateOne(ctx context.Context, pageURL string) (*Result, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid validator endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("doc", pageURL)
	q.Set("out", "json")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("validation service returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading validation response: %w", err)
	}

	var nu nuResponse
	if err := json.Unmarshal(body, &nu); err != nil {
		return nil, fmt.Errorf("decoding validation response: %w", err)
	}

	result := &Result{
		URL:       pageURL,
		Errors:    []api.ValidationMessage{},
		Warnings:  []api.ValidationMessage{},
		CheckedAt: time.Now().UTC(),
	}

	for _, msg := range nu.Messages {
		switch {
		case msg.Type == "error":
			result.Errors = append(result.Errors, toApiMessage(msg))
		case msg.Type == "info" && msg.SubType == "warning":
			result.Warnings = append(result.Warnings, toApiMessage(msg))
		default:
			// plain info and anything unrecognized is neither an error nor a
			// warning; dropping it beats promoting it
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

func toApiMessage(msg nuMessage) api.ValidationMessage {
	return api.ValidationMessage{
		Message:     msg.Message,
		Severity:    severityFor(msg),
		FirstLine:   msg.FirstLine,
		LastLine:    msg.LastLine,
		FirstColumn: msg.FirstColumn,
		LastColumn:  msg.LastColumn,
		Extract:     msg.Extract,
	}
}

// severityFor derives a coarse severity from the validator's own
// classification.
func severityFor(msg nuMessage) api.Severity {
	switch {
	case msg.SubType == "fatal":
		return api.SeverityCritical
	case msg.Type == "error":
		return api.SeverityHigh
	case msg.SubType == "warning":
		return api.SeverityMedium
	case msg.Type == "info":
		return api.SeverityLow
	default:
		return api.SeverityMedium
	}
}
