package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// Client sends transactional mail through the Postmark HTTP API.
type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

func (c *Client) eventLink(eventID int64) string {
	return fmt.Sprintf("%s/api/events/%d", c.baseURL, eventID)
}

// SendEventInvitation tells toEmail they were invited to vote on an event's dates.
func (c *Client) SendEventInvitation(ctx context.Context, toEmail string, eventID int64, title string) error {
	link := c.eventLink(eventID)
	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  fmt.Sprintf("You're invited to %s", title),
		TextBody: fmt.Sprintf("You have been invited to %q.\n\nVote on the proposed dates:\n%s", title, link),
		HtmlBody: fmt.Sprintf(
			`<p>You have been invited to <strong>%s</strong>.</p><p><a href="%s">Vote on the proposed dates</a></p>`,
			html.EscapeString(title), link,
		),
	})
}

// SendBestDate tells an event's creator which date won the vote. when is the
// already formatted date, with time if one was proposed.
func (c *Client) SendBestDate(ctx context.Context, toEmail string, eventID int64, title, when string) error {
	link := c.eventLink(eventID)
	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  fmt.Sprintf("Best date for %s", title),
		TextBody: fmt.Sprintf("The best date for %q is %s.\n\n%s", title, when, link),
		HtmlBody: fmt.Sprintf(
			`<p>The best date for <strong>%s</strong> is <strong>%s</strong>.</p><p><a href="%s">View the event</a></p>`,
			html.EscapeString(title), html.EscapeString(when), link,
		),
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
