//go:build integration

package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"
)

type rewardsSettings struct {
	Enabled   bool            `json:"enabled"`
	InlineTip map[string]bool `json:"inlineTip"`
}

type reply struct {
	OK      bool   `json:"ok"`
	Enabled *bool  `json:"enabled"`
	Error   string `json:"error"`
}

func currentSettings(t *testing.T) rewardsSettings {
	t.Helper()
	return expectJSON[rewardsSettings](t, ctl.call(t, http.MethodGet, "/api/v1/rewards", nil), http.StatusOK)
}

func restoreSettings(t *testing.T, st rewardsSettings) {
	t.Cleanup(func() {
		setRewards(t, "/api/v1/rewards", st.Enabled)
		setRewards(t, "/api/v1/rewards/inline-tip/soundcloud", st.InlineTip["soundcloud"])
	})
}

func setRewards(t *testing.T, path string, enabled bool) {
	t.Helper()
	expectStatus(t, ctl.call(t, http.MethodPut, path, map[string]any{"enabled": enabled}), http.StatusOK)
}

func TestMessagesFollowSettings(t *testing.T) {
	restoreSettings(t, currentSettings(t))

	for _, enabled := range []bool{true, false} {
		setRewards(t, "/api/v1/rewards", enabled)
		r := ctl.message(t, map[string]any{"type": "rewardsEnabled"})
		if !r.OK || r.Enabled == nil || *r.Enabled != enabled {
			t.Fatalf("rewardsEnabled reply = %+v; want enabled=%v", r, enabled)
		}
	}

	setRewards(t, "/api/v1/rewards/inline-tip/soundcloud", true)
	r := ctl.message(t, map[string]any{"type": "inlineTipSetting", "key": "soundcloud"})
	if !r.OK || r.Enabled == nil || !*r.Enabled {
		t.Fatalf("inlineTipSetting reply = %+v; want enabled", r)
	}
}

func TestUnknownMessageRejected(t *testing.T) {
	r := ctl.message(t, map[string]any{"type": "noSuchMessage"})
	if r.OK || r.Error == "" {
		t.Fatalf("reply = %+v; want rejection", r)
	}
}

func TestTipReachesStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ctl.baseURL+"/api/v1/tips/stream?feeds=tips", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	stream, err := (&http.Client{}).Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer stream.Body.Close()
	if stream.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", stream.StatusCode)
	}

	userURL := "it-" + ctl.origin
	r := ctl.message(t, map[string]any{
		"type":          "tipInlineMedia",
		"mediaMetaData": map[string]any{"mediaType": "soundcloud", "userUrl": userURL},
		"layout":        "playbackSoundBadge",
	})
	if !r.OK {
		t.Fatalf("tip reply = %+v", r)
	}

	scanner := bufio.NewScanner(stream.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt struct {
			ID            string `json:"id"`
			MediaMetaData struct {
				UserURL string `json:"userUrl"`
			} `json:"mediaMetaData"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.MediaMetaData.UserURL == userURL {
			if evt.ID == "" {
				t.Fatalf("tip event without id")
			}
			return
		}
	}
	t.Fatalf("tip event not received: %v", scanner.Err())
}
