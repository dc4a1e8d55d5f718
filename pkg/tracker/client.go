// Package tracker implements the issue-tracker client. The API is a single
// GraphQL-shaped POST endpoint; the token goes into the Authorization
// header raw, without a "Bearer " prefix.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"threadlens/pkg/model"
	"threadlens/pkg/remote"
)

// DefaultAPIURL is the hosted tracker endpoint.
const DefaultAPIURL = "https://api.linear.app/graphql"

const defaultTimeout = 15 * time.Second

const issueQuery = `query Issue($id: String!) {
  issue(id: $id) {
    id
    identifier
    title
    url
    state { name type }
  }
}`

const commentCreateMutation = `mutation CommentCreate($issueId: String!, $body: String!) {
  commentCreate(input: { issueId: $issueId, body: $body }) {
    success
    comment { id body url }
  }
}`

// Client talks to the tracker. Reads are idempotent; CreateComment is a
// write and is never retried by the client.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a tracker client.
func NewClient(apiURL, token string, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	c := &Client{
		apiURL:     apiURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetIssue resolves an issue by its human identifier ("ENG-123").
func (c *Client) GetIssue(ctx context.Context, identifier string) (model.Issue, error) {
	const op = "tracker.GetIssue"
	var out struct {
		Issue *model.Issue `json:"issue"`
	}
	if err := c.do(ctx, op, issueQuery, map[string]any{"id": identifier}, &out); err != nil {
		return model.Issue{}, err
	}
	if out.Issue == nil {
		return model.Issue{}, remote.Errorf(remote.KindNotFound, op, "issue %s not found", identifier)
	}
	return *out.Issue, nil
}

// CreateComment posts body as a comment on the issue with the given opaque
// ID. A response with success=false means the tracker processed and
// declined the write; that surfaces as a rejected-kind error.
func (c *Client) CreateComment(ctx context.Context, issueID, body string) (model.TrackerComment, error) {
	const op = "tracker.CreateComment"
	var out struct {
		CommentCreate struct {
			Success bool                  `json:"success"`
			Comment *model.TrackerComment `json:"comment"`
		} `json:"commentCreate"`
	}
	if err := c.do(ctx, op, commentCreateMutation, map[string]any{"issueId": issueID, "body": body}, &out); err != nil {
		return model.TrackerComment{}, err
	}
	if !out.CommentCreate.Success {
		return model.TrackerComment{}, remote.Errorf(remote.KindRejected, op, "tracker declined the comment")
	}
	if out.CommentCreate.Comment == nil {
		return model.TrackerComment{}, nil
	}
	return *out.CommentCreate.Comment, nil
}

// gqlError is one entry of the response error list.
type gqlError struct {
	Message string `json:"message"`
}

// do runs one GraphQL request and unmarshals the data payload into out.
func (c *Client) do(ctx context.Context, op, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return remote.Wrap(remote.KindMalformed, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return remote.Wrap(remote.KindNetwork, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Raw token, deliberately not Bearer-prefixed.
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return remote.Wrap(remote.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return remote.Errorf(remote.KindUnauthorized, op, "status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return remote.Wrap(remote.KindNetwork, op, err)
	}

	var wrapper struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return remote.Wrap(remote.KindMalformed, op, err)
	}

	if len(wrapper.Errors) > 0 {
		msg := wrapper.Errors[0].Message
		c.log.Debugw("tracker API returned errors", "op", op, "message", msg)
		return remote.Errorf(kindForGQLError(msg), op, "%s", msg)
	}
	if len(wrapper.Data) == 0 || string(wrapper.Data) == "null" {
		if resp.StatusCode != http.StatusOK {
			return remote.Errorf(remote.KindNetwork, op, "status %d", resp.StatusCode)
		}
		return remote.Errorf(remote.KindMalformed, op, "response carried no data")
	}

	if err := json.Unmarshal(wrapper.Data, out); err != nil {
		return remote.Wrap(remote.KindMalformed, op, err)
	}
	return nil
}

// kindForGQLError maps a tracker error message onto the taxonomy.
func kindForGQLError(msg string) remote.ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "authentication") || strings.Contains(lower, "not authorized") || strings.Contains(lower, "invalid token"):
		return remote.KindUnauthorized
	case strings.Contains(lower, "not found") || strings.Contains(lower, "could not find"):
		return remote.KindNotFound
	default:
		return remote.KindNetwork
	}
}
