package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeHandler struct {
	rewards  bool
	inline   map[string]bool
	tips     []Message
	failWith error
}

func (f *fakeHandler) RewardsEnabled(context.Context) (bool, error) {
	return f.rewards, f.failWith
}

func (f *fakeHandler) InlineTipSetting(_ context.Context, key string) (bool, error) {
	return f.inline[key], f.failWith
}

func (f *fakeHandler) TipInlineMedia(_ context.Context, msg Message) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.tips = append(f.tips, msg)
	return nil
}

func TestResponderDispatch(t *testing.T) {
	h := &fakeHandler{rewards: true, inline: map[string]bool{"soundcloud": true}}
	r := NewResponder(h)
	ctx := context.Background()

	if got, err := r.Respond(ctx, Message{Type: TypeRewardsEnabled}).Flag(); err != nil || !got {
		t.Fatalf("rewardsEnabled = %v, %v; want true, nil", got, err)
	}
	if got, err := r.Respond(ctx, Message{Type: TypeInlineTipSetting, Key: "soundcloud"}).Flag(); err != nil || !got {
		t.Fatalf("inlineTipSetting = %v, %v; want true, nil", got, err)
	}
	if got, err := r.Respond(ctx, Message{Type: TypeInlineTipSetting, Key: "youtube"}).Flag(); err != nil || got {
		t.Fatalf("inlineTipSetting(youtube) = %v, %v; want false, nil", got, err)
	}

	meta := &MediaMetaData{MediaType: MediaTypeSoundCloud, UserURL: "artist"}
	if err := r.Respond(ctx, Message{Type: TypeTipInlineMedia, MediaMetaData: meta, TabID: "T1"}).Ack(); err != nil {
		t.Fatalf("tipInlineMedia error = %v", err)
	}
	if len(h.tips) != 1 || h.tips[0].MediaMetaData.UserURL != "artist" {
		t.Fatalf("tips = %+v", h.tips)
	}
}

func TestResponderRejects(t *testing.T) {
	r := NewResponder(&fakeHandler{})
	ctx := context.Background()

	tests := []struct {
		name string
		msg  Message
	}{
		{"unknown type", Message{Type: "openWallet"}},
		{"empty type", Message{}},
		{"missing key", Message{Type: TypeInlineTipSetting, Key: " "}},
		{"missing metadata", Message{Type: TypeTipInlineMedia}},
		{"empty user", Message{Type: TypeTipInlineMedia, MediaMetaData: &MediaMetaData{MediaType: MediaTypeSoundCloud}}},
		{"unknown media type", Message{Type: TypeTipInlineMedia, MediaMetaData: &MediaMetaData{MediaType: "x0", UserURL: "artist"}}},
		{"empty media type", Message{Type: TypeTipInlineMedia, MediaMetaData: &MediaMetaData{UserURL: "artist"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := r.Respond(ctx, tt.msg)
			if reply.OK || reply.Error == "" {
				t.Fatalf("Respond() = %+v; want rejection", reply)
			}
			if err := reply.Ack(); !errors.Is(err, ErrRejected) {
				t.Fatalf("Ack() = %v; want ErrRejected", err)
			}
		})
	}
}

func TestResponderHandlerError(t *testing.T) {
	r := NewResponder(&fakeHandler{failWith: errors.New("store offline")})
	reply := r.Respond(context.Background(), Message{Type: TypeRewardsEnabled})
	if reply.OK || reply.Error != "store offline" {
		t.Fatalf("Respond() = %+v", reply)
	}
	if reply.Enabled != nil {
		t.Fatalf("Enabled = %v; want nil on failure", *reply.Enabled)
	}
}

func TestResponderUnknownMediaNeverReachesHandler(t *testing.T) {
	h := &fakeHandler{}
	r := NewResponder(h)
	for _, mt := range []string{"x0", "x1", "../tips", "SoundCloud"} {
		msg := Message{Type: TypeTipInlineMedia, MediaMetaData: &MediaMetaData{MediaType: mt, UserURL: "artist"}}
		reply := r.Respond(context.Background(), msg)
		if reply.OK || !strings.Contains(reply.Error, "unsupported media type") {
			t.Fatalf("Respond(%q) = %+v; want unsupported media rejection", mt, reply)
		}
	}
	if len(h.tips) != 0 {
		t.Fatalf("handler saw %d tips; want 0", len(h.tips))
	}
}
