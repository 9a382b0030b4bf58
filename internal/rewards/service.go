// Package rewards owns the rewards settings the tip injector consults and
// records the tips it reports.
package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/tipshield/internal/config"
	"github.com/dgnsrekt/tipshield/internal/kvstore"
	"github.com/dgnsrekt/tipshield/internal/messaging"
	"github.com/dgnsrekt/tipshield/internal/notify"
	"github.com/dgnsrekt/tipshield/internal/relay"
	"github.com/dgnsrekt/tipshield/internal/storage"
)

// SettingsKey is the persisted key holding Settings.
const SettingsKey = "rewardsSettings"

// TipStream is the tip log stream every tip is appended to.
const TipStream = "inline_media"

const notifyTimeout = 5 * time.Second

// Settings are the persisted rewards switches.
type Settings struct {
	Enabled   bool            `json:"enabled"`
	InlineTip map[string]bool `json:"inlineTip"`
}

// TipEvent is one delivered tipInlineMedia message.
type TipEvent struct {
	ID            string                  `json:"id"`
	TabID         string                  `json:"tabId,omitempty"`
	Layout        string                  `json:"layout,omitempty"`
	MediaMetaData messaging.MediaMetaData `json:"mediaMetaData"`
	ReceivedAt    time.Time               `json:"receivedAt"`
}

// Notifier is told about each tip. Failures are logged only.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// Options wires the optional tip sinks.
type Options struct {
	TipLog   *storage.WriterRegistry
	Broker   *relay.Broker
	Notifier Notifier
	Now      func() time.Time
}

// Service implements messaging.Handler over a kvstore.Store.
type Service struct {
	kv       kvstore.Store
	tipLog   *storage.WriterRegistry
	broker   *relay.Broker
	notifier Notifier
	now      func() time.Time

	wg sync.WaitGroup
}

var _ messaging.Handler = (*Service)(nil)

func NewService(kv kvstore.Store, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		kv:       kv,
		tipLog:   opts.TipLog,
		broker:   opts.Broker,
		notifier: opts.Notifier,
		now:      now,
	}
}

// Seed stores seed as the settings unless settings already exist.
func (s *Service) Seed(ctx context.Context, seed config.RewardsSeed) error {
	seeded := false
	err := s.kv.Update(ctx, SettingsKey, func(old []byte, ok bool) ([]byte, error) {
		if ok {
			return old, nil
		}
		seeded = true
		inline := make(map[string]bool, len(seed.InlineTip))
		for k, v := range seed.InlineTip {
			inline[k] = v
		}
		return json.Marshal(Settings{Enabled: seed.Enabled, InlineTip: inline})
	})
	if err != nil {
		return fmt.Errorf("rewards: seed: %w", err)
	}
	if seeded {
		slog.Info("rewards settings seeded", "enabled", seed.Enabled, "sites", len(seed.InlineTip))
	}
	return nil
}

// Settings returns the current settings; absent settings read as all off.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	raw, ok, err := s.kv.Get(ctx, SettingsKey)
	if err != nil {
		return Settings{}, fmt.Errorf("rewards: read settings: %w", err)
	}
	if !ok {
		return Settings{InlineTip: map[string]bool{}}, nil
	}
	return decodeSettings(raw)
}

// SetRewardsEnabled flips the global rewards switch.
func (s *Service) SetRewardsEnabled(ctx context.Context, enabled bool) (Settings, error) {
	return s.update(ctx, func(st *Settings) { st.Enabled = enabled })
}

// SetInlineTip flips inline tipping for one site key.
func (s *Service) SetInlineTip(ctx context.Context, site string, enabled bool) (Settings, error) {
	site = strings.TrimSpace(site)
	if site == "" {
		return Settings{}, fmt.Errorf("rewards: site key is required")
	}
	return s.update(ctx, func(st *Settings) { st.InlineTip[site] = enabled })
}

// RewardsEnabled answers the rewardsEnabled message.
func (s *Service) RewardsEnabled(ctx context.Context) (bool, error) {
	st, err := s.Settings(ctx)
	if err != nil {
		return false, err
	}
	return st.Enabled, nil
}

// InlineTipSetting answers the inlineTipSetting message. Unknown keys are off.
func (s *Service) InlineTipSetting(ctx context.Context, key string) (bool, error) {
	st, err := s.Settings(ctx)
	if err != nil {
		return false, err
	}
	return st.InlineTip[key], nil
}

// TipInlineMedia records a tip click: JSONL log, tips feed, notifier.
func (s *Service) TipInlineMedia(ctx context.Context, msg messaging.Message) error {
	if msg.MediaMetaData == nil {
		return fmt.Errorf("rewards: tip without media metadata")
	}
	evt := TipEvent{
		ID:            uuid.NewString(),
		TabID:         msg.TabID,
		Layout:        msg.Layout,
		MediaMetaData: *msg.MediaMetaData,
		ReceivedAt:    s.now().UTC(),
	}
	slog.Info("tip received",
		"id", evt.ID,
		"media_type", evt.MediaMetaData.MediaType,
		"user_url", evt.MediaMetaData.UserURL,
		"layout", evt.Layout,
		"tab_id", evt.TabID)

	if s.tipLog != nil {
		if err := s.tipLog.GetWriter(TipStream).Write(evt); err != nil {
			slog.Warn("tip log write failed", "id", evt.ID, "error", err)
		}
	}
	if s.broker != nil {
		if err := s.broker.PublishJSON(relay.FeedTips, evt.ID, evt); err != nil {
			slog.Warn("tip publish failed", "id", evt.ID, "error", err)
		}
	}
	if s.notifier != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := s.notifier.Notify(nctx, tipNotification(evt)); err != nil {
				slog.Warn("tip notification failed", "id", evt.ID, "error", err)
			}
		}()
	}
	return nil
}

func tipNotification(evt TipEvent) notify.Message {
	meta := evt.MediaMetaData
	msg := notify.Message{
		Title: "New tip",
		Body:  fmt.Sprintf("Tip for %s creator %s", meta.MediaType, meta.UserURL),
		Tags:  []string{"moneybag", meta.MediaType},
	}
	if meta.MediaType == messaging.MediaTypeSoundCloud {
		msg.Click = "https://soundcloud.com/" + url.PathEscape(meta.UserURL)
	}
	return msg
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) update(ctx context.Context, mutate func(*Settings)) (Settings, error) {
	var out Settings
	err := s.kv.Update(ctx, SettingsKey, func(old []byte, ok bool) ([]byte, error) {
		st := Settings{InlineTip: map[string]bool{}}
		if ok {
			var err error
			if st, err = decodeSettings(old); err != nil {
				return nil, err
			}
		}
		mutate(&st)
		out = st
		return json.Marshal(st)
	})
	if err != nil {
		return Settings{}, fmt.Errorf("rewards: update settings: %w", err)
	}
	return out, nil
}

func decodeSettings(raw []byte) (Settings, error) {
	var st Settings
	if err := json.Unmarshal(raw, &st); err != nil {
		return Settings{}, fmt.Errorf("rewards: decode %s: %w", SettingsKey, err)
	}
	if st.InlineTip == nil {
		st.InlineTip = map[string]bool{}
	}
	return st, nil
}
