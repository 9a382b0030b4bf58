package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Handler answers the controller side of the message channel.
type Handler interface {
	RewardsEnabled(ctx context.Context) (bool, error)
	InlineTipSetting(ctx context.Context, key string) (bool, error)
	TipInlineMedia(ctx context.Context, msg Message) error
}

// Responder validates messages and dispatches them by type.
type Responder struct {
	h Handler
}

func NewResponder(h Handler) *Responder {
	return &Responder{h: h}
}

// Respond always produces a Reply. Validation and handler failures come
// back as OK=false with the error text.
func (r *Responder) Respond(ctx context.Context, msg Message) Reply {
	reply, err := r.dispatch(ctx, msg)
	if err != nil {
		slog.Warn("message rejected", "type", msg.Type, "tab_id", msg.TabID, "error", err)
		return ErrorReply(err)
	}
	slog.Debug("message answered", "type", msg.Type, "tab_id", msg.TabID)
	return reply
}

func (r *Responder) dispatch(ctx context.Context, msg Message) (Reply, error) {
	switch msg.Type {
	case TypeRewardsEnabled:
		enabled, err := r.h.RewardsEnabled(ctx)
		if err != nil {
			return Reply{}, err
		}
		return FlagReply(enabled), nil

	case TypeInlineTipSetting:
		key := strings.TrimSpace(msg.Key)
		if key == "" {
			return Reply{}, errors.New("key is required")
		}
		enabled, err := r.h.InlineTipSetting(ctx, key)
		if err != nil {
			return Reply{}, err
		}
		return FlagReply(enabled), nil

	case TypeTipInlineMedia:
		if msg.MediaMetaData == nil {
			return Reply{}, errors.New("mediaMetaData is required")
		}
		if msg.MediaMetaData.MediaType != MediaTypeSoundCloud {
			return Reply{}, fmt.Errorf("%w: %q", ErrUnsupportedMedia, msg.MediaMetaData.MediaType)
		}
		if strings.TrimSpace(msg.MediaMetaData.UserURL) == "" {
			return Reply{}, errors.New("mediaMetaData.userUrl is required")
		}
		if err := r.h.TipInlineMedia(ctx, msg); err != nil {
			return Reply{}, err
		}
		return Reply{OK: true}, nil

	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}
