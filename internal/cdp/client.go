// Package cdp watches browser tabs through chromedp and runs a tip loop in
// every tab that matches the configured URL filter.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/tipshield/internal/config"
	"github.com/dgnsrekt/tipshield/internal/messaging"
	"github.com/dgnsrekt/tipshield/internal/tipinject"
)

type tabTarget struct {
	ID  target.ID
	URL string
}

type (
	targetLister func(ctx context.Context) ([]*target.Info, error)
	tabRunner    func(ctx context.Context, tab tabTarget) error
)

// Client manages CDP connections to browser tabs.
type Client struct {
	cfg         *config.Config
	sender      messaging.Sender
	tabRegistry *TabRegistry

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	listTargets targetLister
	runTab      tabRunner

	tabs   map[target.ID]*tabRun
	tabsMu sync.Mutex
	wg     sync.WaitGroup
}

type tabRun struct {
	url    string
	cancel context.CancelFunc
}

func NewClient(cfg *config.Config, sender messaging.Sender, tabRegistry *TabRegistry) *Client {
	c := &Client{
		cfg:         cfg,
		sender:      sender,
		tabRegistry: tabRegistry,
		tabs:        make(map[target.ID]*tabRun),
	}
	c.listTargets = func(_ context.Context) ([]*target.Info, error) {
		return chromedp.Targets(c.browserCtx)
	}
	c.runTab = c.runTipLoop
	return c
}

// Connect opens the remote allocator and checks the browser answers.
func (c *Client) Connect(ctx context.Context) error {
	cdpURL := c.cfg.GetCDPURL()
	slog.Info("Connecting to Chromium", "url", cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)

	if err := chromedp.Run(c.browserCtx); err != nil {
		c.browserCancel()
		c.allocCancel()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	return nil
}

// Run attaches to matching tabs and keeps the set current until ctx is
// done. Tabs that disappear have their loop stopped; tabs whose loop fails
// are retried on the next poll.
func (c *Client) Run(ctx context.Context) error {
	interval := time.Duration(c.cfg.TabPollIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := c.sync(ctx); err != nil {
		slog.Warn("Tab sync failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			c.stopAll()
			return nil
		case <-ticker.C:
			if err := c.sync(ctx); err != nil {
				slog.Warn("Tab sync failed", "error", err)
			}
		}
	}
}

// sync reconciles running loops with the current matching targets.
func (c *Client) sync(ctx context.Context) error {
	targets, err := c.listTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate targets: %w", err)
	}
	matches := filterTabTargets(targets, c.cfg.TabURLFilter)

	seen := make(map[target.ID]bool, len(matches))
	for _, t := range matches {
		seen[t.ID] = true
	}

	c.tabsMu.Lock()
	defer c.tabsMu.Unlock()

	for id, run := range c.tabs {
		if seen[id] {
			continue
		}
		slog.Info("Tab gone, stopping tip loop", "target_id", id, "url", truncateURL(run.url))
		run.cancel()
		delete(c.tabs, id)
	}

	for _, t := range matches {
		if _, ok := c.tabs[t.ID]; ok {
			continue
		}
		c.startLocked(ctx, t)
	}
	return nil
}

func (c *Client) startLocked(ctx context.Context, t tabTarget) {
	tabCtx, cancel := context.WithCancel(ctx)
	run := &tabRun{url: t.URL, cancel: cancel}
	c.tabs[t.ID] = run
	c.tabRegistry.Register(t.ID, t.URL)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		if err := c.runTab(tabCtx, t); err != nil && tabCtx.Err() == nil {
			slog.Error("Tip loop failed", "target_id", t.ID, "url", truncateURL(t.URL), "error", err)
		}
		c.forget(t.ID, run)
	}()
}

// forget drops a finished loop unless it was already replaced.
func (c *Client) forget(id target.ID, run *tabRun) {
	c.tabsMu.Lock()
	defer c.tabsMu.Unlock()
	if cur, ok := c.tabs[id]; ok && cur == run {
		delete(c.tabs, id)
	}
	if _, ok := c.tabs[id]; !ok {
		c.tabRegistry.Remove(id)
	}
}

func (c *Client) stopAll() {
	c.tabsMu.Lock()
	for _, run := range c.tabs {
		run.cancel()
	}
	c.tabsMu.Unlock()
	c.wg.Wait()
}

// runTipLoop attaches to one tab, installs the helper and runs the tip
// loop until ctx is done.
func (c *Client) runTipLoop(ctx context.Context, t tabTarget) error {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, chromedp.WithTargetID(t.ID))
	defer tabCancel()

	pg := &tabPage{tabCtx: tabCtx, timeout: c.evalTimeout()}
	inj := tipinject.New(pg, c.sender, c.injectorOptions(t.ID))
	chromedp.ListenTarget(tabCtx, c.createEventHandler(t.ID, inj, tabCancel))

	if err := chromedp.Run(tabCtx, page.Enable(), runtime.Enable(), installHelper()); err != nil {
		return fmt.Errorf("failed to attach to tab: %w", err)
	}
	slog.Info("Attached to tab", "target_id", t.ID, "url", truncateURL(t.URL))

	if c.cfg.ReloadOnAttach {
		reloadCtx, reloadCancel := context.WithTimeout(tabCtx, 30*time.Second)
		if err := chromedp.Run(reloadCtx, chromedp.Reload()); err != nil {
			slog.Warn("Failed to reload tab (continuing)", "target_id", t.ID, "error", err)
		} else {
			slog.Info("Reloaded tab after attach", "target_id", t.ID, "url", truncateURL(t.URL))
		}
		reloadCancel()
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	stop := context.AfterFunc(tabCtx, runCancel)
	defer stop()
	return inj.Run(runCtx)
}

func (c *Client) createEventHandler(tabID target.ID, inj *tipinject.Injector, detach context.CancelFunc) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventBindingCalled:
			if e.Name != tipinject.BindingName {
				return
			}
			pe, err := tipinject.ParsePageEvent(e.Payload)
			if err != nil {
				slog.Debug("Dropping page event", "tab_id", tabID, "error", err)
				return
			}
			inj.HandleEvent(pe)
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				info := c.tabRegistry.Register(tabID, e.Frame.URL)
				slog.Info("Tab navigated (full)", "tab_id", tabID, "hostname", info.Hostname, "url", truncateURL(e.Frame.URL))
			}
		case *page.EventNavigatedWithinDocument:
			info := c.tabRegistry.Register(tabID, e.URL)
			slog.Debug("Tab navigated (SPA)", "tab_id", tabID, "hostname", info.Hostname, "url", truncateURL(e.URL))
		case *inspector.EventDetached:
			slog.Info("Tab detached", "tab_id", tabID, "reason", e.Reason)
			go detach()
		}
	}
}

func (c *Client) injectorOptions(id target.ID) tipinject.Options {
	return tipinject.Options{
		TabID:            string(id),
		SiteKey:          c.cfg.SiteKey,
		ScanInterval:     time.Duration(c.cfg.ScanIntervalMS) * time.Millisecond,
		MutationDebounce: time.Duration(c.cfg.MutationDebounceMS) * time.Millisecond,
		ObserveMutations: c.cfg.ObserveMutations,
		Labels:           tipinject.Labels{Tip: c.cfg.TipLabel, Hover: c.cfg.HoverText},
		TipTimeout:       c.evalTimeout(),
	}
}

func (c *Client) evalTimeout() time.Duration {
	return time.Duration(c.cfg.MessageTimeoutMS) * time.Millisecond
}

func (c *Client) Close() error {
	c.stopAll()
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	slog.Info("CDP client closed")
	return nil
}

func (c *Client) GetTabCount() int {
	c.tabsMu.Lock()
	defer c.tabsMu.Unlock()
	return len(c.tabs)
}

func filterTabTargets(targets []*target.Info, urlFilter string) []tabTarget {
	filter := strings.ToLower(urlFilter)
	matches := make([]tabTarget, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(t.URL), filter) {
			continue
		}
		matches = append(matches, tabTarget{ID: t.TargetID, URL: t.URL})
	}
	return matches
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
