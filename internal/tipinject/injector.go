// Package tipinject keeps tip actions on a SoundCloud page in line with the
// rewards settings, one loop per tab.
//
// A cycle asks the messenger whether tipping is enabled, scans the page for
// the known layouts and inserts or removes tip actions. Cycles re-run on a
// fixed interval while the page is visible, and sooner when the page
// reports DOM mutations.
package tipinject

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/tipshield/internal/messaging"
)

const (
	DefaultScanInterval     = 3000 * time.Millisecond
	DefaultMutationDebounce = 250 * time.Millisecond
	defaultTipTimeout       = 5 * time.Second
)

// Options configure one Injector.
type Options struct {
	TabID            string
	SiteKey          string
	ScanInterval     time.Duration
	MutationDebounce time.Duration
	ObserveMutations bool
	Labels           Labels
	// TipTimeout bounds a fire-and-forget tipInlineMedia send.
	TipTimeout time.Duration
}

// CycleResult summarizes one reconciliation.
type CycleResult struct {
	Enabled    bool
	Containers int
	Planned    int
	Applied    ApplyResult
}

// Injector runs the tip loop for one page.
type Injector struct {
	page    Page
	sender  messaging.Sender
	opts    Options
	layouts []Layout
	byName  map[string]Layout
	actions map[string]*TipAction
	clock   clock

	mu          sync.Mutex
	pendingVis  *bool
	pendingMut  bool
	baseCtx     context.Context
	stopped     bool
	wake        chan struct{}
	tips        sync.WaitGroup
	hidden      bool
	timer       timer
	debounce    timer
	cycleCount  int
	lastEnabled *bool
}

// New builds an Injector. Zero durations fall back to the defaults.
func New(page Page, sender messaging.Sender, opts Options) *Injector {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.MutationDebounce <= 0 {
		opts.MutationDebounce = DefaultMutationDebounce
	}
	if opts.TipTimeout <= 0 {
		opts.TipTimeout = defaultTipTimeout
	}
	if opts.SiteKey == "" {
		opts.SiteKey = messaging.MediaTypeSoundCloud
	}

	layouts := Layouts()
	in := &Injector{
		page:    page,
		sender:  sender,
		opts:    opts,
		layouts: layouts,
		byName:  make(map[string]Layout, len(layouts)),
		actions: make(map[string]*TipAction, len(layouts)),
		clock:   realClock{},
		wake:    make(chan struct{}, 1),
	}
	for _, l := range layouts {
		in.byName[l.Name] = l
		in.actions[l.Name] = BuildTipAction(l, opts.Labels)
	}
	return in
}

// Run performs a first cycle and then serves timer, visibility and
// mutation events until ctx is done. It waits for pending tip sends before
// returning.
func (in *Injector) Run(ctx context.Context) error {
	in.mu.Lock()
	in.baseCtx = ctx
	in.mu.Unlock()

	slog.Info("tip loop started", "tab_id", in.opts.TabID, "interval", in.opts.ScanInterval)
	in.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			in.cancelTimers()
			in.mu.Lock()
			in.stopped = true
			in.mu.Unlock()
			in.tips.Wait()
			slog.Info("tip loop stopped", "tab_id", in.opts.TabID, "cycles", in.cycleCount)
			return nil
		case <-timerC(in.timer):
			in.timer = nil
			in.cycle(ctx)
		case <-timerC(in.debounce):
			in.debounce = nil
			in.cycle(ctx)
		case <-in.wake:
			in.drain()
		}
	}
}

// HandleEvent accepts a page event. It never blocks; visibility and
// mutation reports are coalesced until the loop picks them up.
func (in *Injector) HandleEvent(ev PageEvent) {
	switch ev.Kind {
	case EventReady, EventVisibility:
		hidden := ev.Hidden
		in.mu.Lock()
		in.pendingVis = &hidden
		if ev.Kind == EventReady {
			// A fresh document lost every injected action.
			in.pendingMut = true
		}
		in.mu.Unlock()
		in.signal()
	case EventMutation:
		if !in.opts.ObserveMutations {
			return
		}
		in.mu.Lock()
		in.pendingMut = true
		in.mu.Unlock()
		in.signal()
	case EventTip:
		in.handleTip(ev.Click)
	}
}

func (in *Injector) signal() {
	select {
	case in.wake <- struct{}{}:
	default:
	}
}

// drain applies coalesced events, visibility before mutation.
func (in *Injector) drain() {
	in.mu.Lock()
	vis := in.pendingVis
	mut := in.pendingMut
	in.pendingVis = nil
	in.pendingMut = false
	in.mu.Unlock()

	if vis != nil {
		in.setHidden(*vis)
	}
	if mut && !in.hidden {
		if in.debounce != nil {
			in.debounce.Stop()
		}
		in.debounce = in.clock.NewTimer(in.opts.MutationDebounce)
	}
}

// setHidden mirrors the page visibility handler: hidden disarms the loop,
// visible re-arms it after the scan interval.
func (in *Injector) setHidden(hidden bool) {
	in.hidden = hidden
	in.cancelTimers()
	if hidden {
		slog.Debug("tip loop paused", "tab_id", in.opts.TabID)
		return
	}
	in.timer = in.clock.NewTimer(in.opts.ScanInterval)
}

func (in *Injector) cancelTimers() {
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
	if in.debounce != nil {
		in.debounce.Stop()
		in.debounce = nil
	}
}

// cycle cancels any pending re-run, reconciles, and schedules the next run
// unless the page is hidden. The next run is scheduled even when the cycle
// failed.
func (in *Injector) cycle(ctx context.Context) {
	in.cancelTimers()
	in.cycleCount++

	res, err := in.Cycle(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("tip cycle failed", "tab_id", in.opts.TabID, "timeout", messaging.IsTimeout(err), "error", err)
		}
	} else if res.Planned > 0 {
		slog.Info("tip cycle applied",
			"tab_id", in.opts.TabID,
			"enabled", res.Enabled,
			"inserted", res.Applied.Inserted,
			"removed", res.Applied.Removed,
			"skipped", res.Applied.Skipped)
	} else {
		slog.Debug("tip cycle no change", "tab_id", in.opts.TabID, "enabled", res.Enabled, "containers", res.Containers)
	}

	if ctx.Err() != nil || in.hidden {
		return
	}
	in.timer = in.clock.NewTimer(in.opts.ScanInterval)
}

// Cycle runs one reconciliation without touching the schedule. A failed or
// malformed reply leaves the page unchanged.
func (in *Injector) Cycle(ctx context.Context) (CycleResult, error) {
	rewards, err := messaging.RewardsEnabled(ctx, in.sender)
	if err != nil {
		return CycleResult{}, err
	}
	inline, err := messaging.InlineTipSetting(ctx, in.sender, in.opts.SiteKey)
	if err != nil {
		return CycleResult{}, err
	}
	enabled := rewards && inline
	if in.lastEnabled == nil || *in.lastEnabled != enabled {
		slog.Info("tipping state", "tab_id", in.opts.TabID, "enabled", enabled, "rewards", rewards, "inline", inline)
		in.lastEnabled = &enabled
	}

	states, err := in.page.Scan(ctx, in.layouts)
	if err != nil {
		return CycleResult{Enabled: enabled}, err
	}
	res := CycleResult{Enabled: enabled, Containers: len(states)}

	ops := Plan(states, enabled, in.actions)
	res.Planned = len(ops)
	if len(ops) == 0 {
		return res, nil
	}
	applied, err := in.page.Apply(ctx, ops)
	res.Applied = applied
	return res, err
}

func (in *Injector) handleTip(c Click) {
	l, ok := in.byName[c.Layout]
	if !ok {
		slog.Debug("tip click from unknown layout", "tab_id", in.opts.TabID, "layout", c.Layout)
		return
	}
	meta := ExtractMetaData(l, c)
	if meta == nil {
		slog.Debug("tip click without metadata", "tab_id", in.opts.TabID, "layout", c.Layout)
		return
	}

	in.mu.Lock()
	if in.stopped {
		in.mu.Unlock()
		return
	}
	base := in.baseCtx
	if base == nil {
		base = context.Background()
	}
	in.tips.Add(1)
	in.mu.Unlock()

	go func() {
		defer in.tips.Done()
		ctx, cancel := context.WithTimeout(base, in.opts.TipTimeout)
		defer cancel()
		if err := messaging.TipInlineMedia(ctx, in.sender, *meta, in.opts.TabID, l.Name); err != nil {
			slog.Warn("tip send failed", "tab_id", in.opts.TabID, "user_url", meta.UserURL, "error", err)
			return
		}
		slog.Info("tip sent", "tab_id", in.opts.TabID, "layout", l.Name, "user_url", meta.UserURL)
	}()
}
