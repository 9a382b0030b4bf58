package tipinject

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/tipshield/internal/messaging"
)

// fakeContainer models one matched container: its tip markers, whether the
// insertion slot exists and how many unrelated children it holds.
type fakeContainer struct {
	markers int
	hasSlot bool
	others  int
}

// fakePage is an in-memory document following the helper script's rules.
type fakePage struct {
	mu         sync.Mutex
	containers map[string][]*fakeContainer
	scans      atomic.Int32
	inserted   []*TipAction
	scanErr    error
}

func newFakePage() *fakePage {
	return &fakePage{containers: make(map[string][]*fakeContainer)}
}

func (p *fakePage) add(layout string, c *fakeContainer) *fakeContainer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.containers[layout] = append(p.containers[layout], c)
	return c
}

func (p *fakePage) Scan(_ context.Context, layouts []Layout) ([]ContainerState, error) {
	p.scans.Add(1)
	if p.scanErr != nil {
		return nil, p.scanErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ContainerState
	for _, l := range layouts {
		for i, c := range p.containers[l.Name] {
			out = append(out, ContainerState{Layout: l.Name, Index: i, Markers: c.markers, HasSlot: c.hasSlot})
		}
	}
	return out, nil
}

func (p *fakePage) Apply(_ context.Context, ops []Op) (ApplyResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var res ApplyResult
	for _, op := range ops {
		list := p.containers[op.Layout]
		if op.Index >= len(list) {
			res.Skipped++
			continue
		}
		c := list[op.Index]
		switch op.Kind {
		case OpInsert:
			if c.markers != 0 || !c.hasSlot || op.Action == nil {
				res.Skipped++
				continue
			}
			c.markers++
			p.inserted = append(p.inserted, op.Action)
			res.Inserted++
		case OpRemove:
			if c.markers != 1 {
				res.Skipped++
				continue
			}
			c.markers--
			res.Removed++
		}
	}
	return res, nil
}

func (p *fakePage) scanCount() int { return int(p.scans.Load()) }

// fakeSender answers settings messages and records everything sent.
type fakeSender struct {
	mu       sync.Mutex
	rewards  messaging.Reply
	inline   messaging.Reply
	err      error
	messages []messaging.Message
}

func enabledSender(rewards, inline bool) *fakeSender {
	return &fakeSender{rewards: messaging.FlagReply(rewards), inline: messaging.FlagReply(inline)}
}

func (s *fakeSender) set(rewards, inline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewards = messaging.FlagReply(rewards)
	s.inline = messaging.FlagReply(inline)
}

func (s *fakeSender) Send(_ context.Context, msg messaging.Message) (messaging.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if s.err != nil {
		return messaging.Reply{}, s.err
	}
	switch msg.Type {
	case messaging.TypeRewardsEnabled:
		return s.rewards, nil
	case messaging.TypeInlineTipSetting:
		return s.inline, nil
	case messaging.TypeTipInlineMedia:
		return messaging.Reply{OK: true}, nil
	}
	return messaging.ErrorReply(errors.New("unknown")), nil
}

func (s *fakeSender) sent(kind string) []messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []messaging.Message
	for _, m := range s.messages {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakeTimer struct {
	d       time.Duration
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }
func (t *fakeTimer) Stop() bool          { return !t.stopped.Swap(true) }
func (t *fakeTimer) fire()               { t.c <- time.Now() }

type fakeClock struct {
	created chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{created: make(chan *fakeTimer, 32)}
}

func (f *fakeClock) NewTimer(d time.Duration) timer {
	t := &fakeTimer{d: d, c: make(chan time.Time, 1)}
	f.created <- t
	return t
}

func (f *fakeClock) next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case tm := <-f.created:
		return tm
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a timer")
		return nil
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
