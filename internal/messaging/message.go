// Package messaging carries the request/response messages exchanged between
// the tip injector running next to a page and the controller that owns the
// rewards settings.
package messaging

import (
	"errors"
	"fmt"
)

const (
	TypeRewardsEnabled   = "rewardsEnabled"
	TypeInlineTipSetting = "inlineTipSetting"
	TypeTipInlineMedia   = "tipInlineMedia"
)

// MediaTypeSoundCloud is the only media type the tip injector reports.
const MediaTypeSoundCloud = "soundcloud"

var (
	ErrUnknownType      = errors.New("messaging: unknown message type")
	ErrMalformedReply   = errors.New("messaging: malformed reply")
	ErrRejected         = errors.New("messaging: request rejected")
	ErrUnsupportedMedia = errors.New("messaging: unsupported media type")
)

// MediaMetaData identifies the creator a tip is meant for.
type MediaMetaData struct {
	MediaType string `json:"mediaType"`
	UserURL   string `json:"userUrl"`
}

// Message is one request. Key is set for inlineTipSetting, MediaMetaData for
// tipInlineMedia. TabID and Layout describe the sender.
type Message struct {
	Type          string         `json:"type"`
	Key           string         `json:"key,omitempty"`
	MediaMetaData *MediaMetaData `json:"mediaMetaData,omitempty"`
	TabID         string         `json:"tabId,omitempty"`
	Layout        string         `json:"layout,omitempty"`
}

// Reply is the tagged response to a Message.
type Reply struct {
	OK      bool   `json:"ok"`
	Enabled *bool  `json:"enabled,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Flag returns the boolean carried by a settings reply.
func (r Reply) Flag() (bool, error) {
	if !r.OK {
		if r.Error == "" {
			return false, ErrRejected
		}
		return false, fmt.Errorf("%w: %s", ErrRejected, r.Error)
	}
	if r.Enabled == nil {
		return false, fmt.Errorf("%w: missing enabled", ErrMalformedReply)
	}
	return *r.Enabled, nil
}

// Ack reports whether a fire-and-forget request was accepted.
func (r Reply) Ack() error {
	if r.OK {
		return nil
	}
	if r.Error == "" {
		return ErrRejected
	}
	return fmt.Errorf("%w: %s", ErrRejected, r.Error)
}

// FlagReply builds a successful settings reply.
func FlagReply(enabled bool) Reply {
	return Reply{OK: true, Enabled: &enabled}
}

// ErrorReply builds a failed reply.
func ErrorReply(err error) Reply {
	return Reply{OK: false, Error: err.Error()}
}
