// Package notify posts tip notifications to an ntfy topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// errBodyLimit caps how much of a failed response ends up in the error.
const errBodyLimit = 512

var (
	ErrNoEndpoint = errors.New("notify: missing endpoint")
	ErrEmptyBody  = errors.New("notify: empty message body")
)

// Message is one notification. Title, Click and Tags travel as ntfy
// headers and are omitted when empty.
type Message struct {
	Title string
	Body  string
	Click string
	Tags  []string
}

// Notifier posts to a single topic URL.
type Notifier struct {
	client   *http.Client
	endpoint string
}

// New returns a Notifier for endpoint. A nil client uses http.DefaultClient.
func New(client *http.Client, endpoint string) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{client: client, endpoint: strings.TrimSpace(endpoint)}
}

// Notify publishes msg. Any non-2xx answer is an error carrying the start of
// the response body.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if n.endpoint == "" {
		return ErrNoEndpoint
	}
	if strings.TrimSpace(msg.Body) == "" {
		return ErrEmptyBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if msg.Click != "" {
		req.Header.Set("Click", msg.Click)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return fmt.Errorf("notify: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
