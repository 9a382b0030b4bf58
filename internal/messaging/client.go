package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Path is the controller endpoint messages are posted to.
const Path = "/api/v1/messages"

// maxReplyBytes bounds how much of a reply body is read.
const maxReplyBytes = 64 << 10

// Sender delivers one Message and returns its Reply.
type Sender interface {
	Send(ctx context.Context, msg Message) (Reply, error)
}

// Client posts messages to the controller over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
}

// NewClient targets baseURL (e.g. http://127.0.0.1:8288). Every round trip
// is bounded by timeout when it is positive.
func NewClient(baseURL string, client *http.Client, timeout time.Duration) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + Path,
		http:     client,
		timeout:  timeout,
	}
}

// Send posts msg and decodes the reply. A non-2xx status is an error even
// when the body carries a reply.
func (c *Client) Send(ctx context.Context, msg Message) (Reply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return Reply{}, fmt.Errorf("messaging: marshal %s: %w", msg.Type, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("messaging: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("messaging: send %s: %w", msg.Type, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return Reply{}, fmt.Errorf("messaging: read reply: %w", err)
	}

	var reply Reply
	decodeErr := json.Unmarshal(raw, &reply)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && reply.Error != "" {
			return reply, fmt.Errorf("messaging: %s: status=%d: %s", msg.Type, resp.StatusCode, reply.Error)
		}
		return Reply{}, fmt.Errorf("messaging: %s: status=%d", msg.Type, resp.StatusCode)
	}
	if decodeErr != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, decodeErr)
	}
	return reply, nil
}

// RewardsEnabled asks whether rewards are globally enabled.
func RewardsEnabled(ctx context.Context, s Sender) (bool, error) {
	reply, err := s.Send(ctx, Message{Type: TypeRewardsEnabled})
	if err != nil {
		return false, err
	}
	return reply.Flag()
}

// InlineTipSetting asks whether inline tipping is enabled for site key.
func InlineTipSetting(ctx context.Context, s Sender, key string) (bool, error) {
	reply, err := s.Send(ctx, Message{Type: TypeInlineTipSetting, Key: key})
	if err != nil {
		return false, err
	}
	return reply.Flag()
}

// TipInlineMedia reports a tip click. Callers treat it as fire-and-forget.
func TipInlineMedia(ctx context.Context, s Sender, meta MediaMetaData, tabID, layout string) error {
	reply, err := s.Send(ctx, Message{
		Type:          TypeTipInlineMedia,
		MediaMetaData: &meta,
		TabID:         tabID,
		Layout:        layout,
	})
	if err != nil {
		return err
	}
	return reply.Ack()
}

// IsTimeout reports whether err came from a round trip that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
