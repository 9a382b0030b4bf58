//go:build integration

package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/tipshield/internal/messaging"
	"github.com/dgnsrekt/tipshield/internal/tipinject"
)

// tipFixture carries one container per layout. Each slot already holds
// host buttons so insertion and removal can be checked against them. Body
// clicks are counted to see whether a tip click escapes its button.
const tipFixture = `<!doctype html>
<html><body>
<div class="playbackSoundBadge">
  <a class="playbackSoundBadge__avatar" href="https://soundcloud.com/player-artist/sets/x"></a>
  <div class="playbackSoundBadge__actions"><button class="like">Like</button><button class="follow">Follow</button></div>
</div>
<div class="sound__body">
  <a class="soundTitle__username" href="https://soundcloud.com/body-artist"></a>
  <div class="soundActions"><div class="sc-button-group"><button class="like">Like</button></div></div>
</div>
<div class="listenEngagement">
  <div class="soundActions"><div class="sc-button-group"><button class="like">Like</button><button class="repost">Repost</button></div></div>
</div>
<script>
window.bodyClicks = 0;
document.body.addEventListener('click', function () { window.bodyClicks++; });
</script>
</body></html>`

// slotReport describes the slot children of the first container of each
// layout: markers counts tip actions in the container, others the host
// children of the slot, position the marker's index among them (-1 if
// absent).
const slotReport = `(function () {
  var slots = {
    playbackSoundBadge: document.querySelector('.playbackSoundBadge .playbackSoundBadge__actions'),
    sound__body: document.querySelector('.sound__body .soundActions').firstElementChild,
    listenEngagement: document.querySelector('.listenEngagement .soundActions').firstElementChild
  };
  var out = {};
  Object.keys(slots).forEach(function (name) {
    var kids = Array.prototype.slice.call(slots[name].children);
    var isMarker = function (c) { return c.classList.contains('action-brave-tip'); };
    out[name] = {
      markers: document.getElementsByClassName(name)[0].getElementsByClassName('action-brave-tip').length,
      others: kids.filter(function (c) { return !isMarker(c); }).length,
      position: kids.findIndex(isMarker),
      size: kids.length
    };
  });
  return JSON.stringify(out);
})()`

type slotState struct {
	Markers  int `json:"markers"`
	Others   int `json:"others"`
	Position int `json:"position"`
	Size     int `json:"size"`
}

// settingsSender answers settings messages from a switch and records tips.
type settingsSender struct {
	mu      sync.Mutex
	enabled bool
	tips    []messaging.Message
}

func (s *settingsSender) set(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *settingsSender) Send(_ context.Context, msg messaging.Message) (messaging.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Type == messaging.TypeTipInlineMedia {
		s.tips = append(s.tips, msg)
		return messaging.Reply{OK: true}, nil
	}
	return messaging.FlagReply(s.enabled), nil
}

func (s *settingsSender) sentTips() []messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.Message(nil), s.tips...)
}

// browserContext returns an allocator for TIPSHIELD_TEST_CDP_URL when set,
// otherwise for a local headless Chromium.
func browserContext(t *testing.T) context.Context {
	t.Helper()
	if url := os.Getenv("TIPSHIELD_TEST_CDP_URL"); url != "" {
		ctx, cancel := chromedp.NewRemoteAllocator(context.Background(), url)
		t.Cleanup(cancel)
		return ctx
	}
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable", "headless-shell"} {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(path), chromedp.NoSandbox)
		ctx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
		t.Cleanup(cancel)
		return ctx
	}
	t.Skip("no browser available; set TIPSHIELD_TEST_CDP_URL or install Chromium")
	return nil
}

type tipHarness struct {
	tabCtx context.Context
	inj    *tipinject.Injector
	sender *settingsSender
	clicks chan tipinject.Click
}

func newTipHarness(t *testing.T) *tipHarness {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, tipFixture)
	}))
	t.Cleanup(srv.Close)

	tabCtx, cancel := chromedp.NewContext(browserContext(t))
	t.Cleanup(cancel)
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, 60*time.Second)
	t.Cleanup(timeoutCancel)

	h := &tipHarness{
		tabCtx: tabCtx,
		sender: &settingsSender{enabled: true},
		clicks: make(chan tipinject.Click, 8),
	}
	pg := &tabPage{tabCtx: tabCtx, timeout: 10 * time.Second}
	h.inj = tipinject.New(pg, h.sender, tipinject.Options{TabID: "fixture"})

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok || e.Name != tipinject.BindingName {
			return
		}
		pe, err := tipinject.ParsePageEvent(e.Payload)
		if err != nil || pe.Kind != tipinject.EventTip {
			return
		}
		select {
		case h.clicks <- pe.Click:
		default:
		}
		h.inj.HandleEvent(pe)
	})

	err := chromedp.Run(tabCtx,
		chromedp.Navigate(srv.URL+"/listen-artist/some-track"),
		page.Enable(),
		runtime.Enable(),
		installHelper(),
	)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return h
}

func (h *tipHarness) cycle(t *testing.T) tipinject.CycleResult {
	t.Helper()
	res, err := h.inj.Cycle(h.tabCtx)
	if err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	return res
}

func (h *tipHarness) slots(t *testing.T) map[string]slotState {
	t.Helper()
	var raw string
	if err := chromedp.Run(h.tabCtx, chromedp.Evaluate(slotReport, &raw)); err != nil {
		t.Fatalf("read slots: %v", err)
	}
	var out map[string]slotState
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	return out
}

func (h *tipHarness) clickTip(t *testing.T, layout string) tipinject.Click {
	t.Helper()
	js := fmt.Sprintf(`(function () {
  var host = document.getElementsByClassName(%q)[0].getElementsByClassName(%q)[0];
  host.shadowRoot.querySelector('button').click();
  return true;
})()`, layout, tipinject.MarkerClass)
	var clicked bool
	if err := chromedp.Run(h.tabCtx, chromedp.Evaluate(js, &clicked)); err != nil {
		t.Fatalf("click %s: %v", layout, err)
	}
	select {
	case c := <-h.clicks:
		return c
	case <-time.After(5 * time.Second):
		t.Fatalf("no tip event for %s", layout)
		return tipinject.Click{}
	}
}

func TestTipHelperInsertsOnceAndRemovesOnce(t *testing.T) {
	h := newTipHarness(t)
	before := h.slots(t)

	res := h.cycle(t)
	if res.Containers != 3 || res.Applied.Inserted != 3 {
		t.Fatalf("first cycle = %+v; want 3 containers, 3 inserted", res)
	}
	if res := h.cycle(t); res.Planned != 0 {
		t.Fatalf("second cycle planned %d ops; want 0", res.Planned)
	}

	// The player slot takes the action in front, the button groups at the end.
	wantPosition := map[string]func(slotState) int{
		tipinject.LayoutPlayer:           func(slotState) int { return 0 },
		tipinject.LayoutSoundBody:        func(s slotState) int { return s.Size - 1 },
		tipinject.LayoutListenEngagement: func(s slotState) int { return s.Size - 1 },
	}
	for name, got := range h.slots(t) {
		if got.Markers != 1 {
			t.Errorf("%s markers = %d; want 1", name, got.Markers)
		}
		if got.Others != before[name].Others {
			t.Errorf("%s host children = %d; want %d", name, got.Others, before[name].Others)
		}
		if want := wantPosition[name](got); got.Position != want {
			t.Errorf("%s marker position = %d; want %d", name, got.Position, want)
		}
	}

	h.sender.set(false)
	if res := h.cycle(t); res.Applied.Removed != 3 {
		t.Fatalf("disable cycle = %+v; want 3 removed", res)
	}
	if res := h.cycle(t); res.Planned != 0 {
		t.Fatalf("cycle after removal planned %d ops; want 0", res.Planned)
	}
	for name, got := range h.slots(t) {
		if got.Markers != 0 || got.Position != -1 {
			t.Errorf("%s still carries a tip action: %+v", name, got)
		}
		if got.Others != before[name].Others {
			t.Errorf("%s host children = %d after removal; want %d", name, got.Others, before[name].Others)
		}
	}
}

func TestTipClickReportsCreatorAndStopsPropagation(t *testing.T) {
	h := newTipHarness(t)
	h.cycle(t)

	tests := []struct {
		layout string
		click  tipinject.Click
		user   string
	}{
		{
			layout: tipinject.LayoutPlayer,
			click:  tipinject.Click{Layout: tipinject.LayoutPlayer, Href: "https://soundcloud.com/player-artist/sets/x", Pathname: "/listen-artist/some-track"},
			user:   "player-artist",
		},
		{
			layout: tipinject.LayoutSoundBody,
			click:  tipinject.Click{Layout: tipinject.LayoutSoundBody, Href: "https://soundcloud.com/body-artist", Pathname: "/listen-artist/some-track"},
			user:   "body-artist",
		},
		{
			layout: tipinject.LayoutListenEngagement,
			click:  tipinject.Click{Layout: tipinject.LayoutListenEngagement, Pathname: "/listen-artist/some-track"},
			user:   "listen-artist",
		},
	}
	for _, tt := range tests {
		if got := h.clickTip(t, tt.layout); got != tt.click {
			t.Errorf("%s click = %+v; want %+v", tt.layout, got, tt.click)
		}
	}

	var bodyClicks int
	if err := chromedp.Run(h.tabCtx, chromedp.Evaluate(`window.bodyClicks`, &bodyClicks)); err != nil {
		t.Fatalf("read body clicks: %v", err)
	}
	if bodyClicks != 0 {
		t.Fatalf("body saw %d tip clicks; want 0", bodyClicks)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(h.sender.sentTips()) < len(tests) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	tips := h.sender.sentTips()
	if len(tips) != len(tests) {
		t.Fatalf("sent %d tips; want %d", len(tips), len(tests))
	}
	got := make(map[string]string, len(tips))
	for _, msg := range tips {
		got[msg.Layout] = msg.MediaMetaData.UserURL
	}
	for _, tt := range tests {
		if got[tt.layout] != tt.user {
			t.Errorf("%s tip user = %q; want %q", tt.layout, got[tt.layout], tt.user)
		}
	}
}
