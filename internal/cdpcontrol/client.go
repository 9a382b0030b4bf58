package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

type tabSession struct {
	info      TabInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
	styles    []styleInjection
}

type Client struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu        sync.Mutex
	cdp       *rawCDP
	tabs      map[target.ID]*tabSession
	unwatch   func()
	styleMemo map[target.ID][]styleInjection

	tabLocksMu sync.Mutex
	tabLocks   map[target.ID]*sync.Mutex
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		tabFilter:   strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout: evalTimeout,
		tabs:        make(map[target.ID]*tabSession),
		styleMemo:   make(map[target.ID][]styleInjection),
		tabLocks:    make(map[target.ID]*sync.Mutex),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.unwatch = c.cdp.subscribe(cdproto.MethodType(cdproto.EventTargetDetachedFromTarget).String(), func(sessionID string, params json.RawMessage) {
		go c.onDetached(params)
	})

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for targetID, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "target_id", targetID, "error", err)
				}
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
}

// onDetached forgets a session the browser dropped so the next call
// re-attaches and replays the tab's styles.
func (c *Client) onDetached(params json.RawMessage) {
	var ev struct {
		SessionID string `json:"sessionId"`
		TargetID  string `json:"targetId"`
	}
	if err := json.Unmarshal(params, &ev); err != nil {
		return
	}
	c.mu.Lock()
	session := c.tabs[target.ID(ev.TargetID)]
	c.mu.Unlock()
	if session == nil {
		return
	}
	session.mu.Lock()
	if session.sessionID == ev.SessionID {
		session.sessionID = ""
		slog.Debug("cdpcontrol session detached", "target_id", ev.TargetID, "session_id", ev.SessionID)
	}
	session.mu.Unlock()
}

// ListTabs returns the page targets matching the tab filter, sorted by
// target id.
func (c *Client) ListTabs(ctx context.Context) ([]TabInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("cdpcontrol list tabs failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	tabs := make([]TabInfo, 0, len(c.tabs))
	for _, s := range c.tabs {
		if s != nil {
			tabs = append(tabs, s.info)
		}
	}
	c.mu.Unlock()

	sort.Slice(tabs, func(i, j int) bool {
		return tabs[i].TargetID < tabs[j].TargetID
	})
	slog.Debug("cdpcontrol list tabs", "count", len(tabs))
	return tabs, nil
}

// Tab resolves one tab by target id.
func (c *Client) Tab(ctx context.Context, targetID string) (TabInfo, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return TabInfo{}, newError(CodeValidation, "target id is required", nil)
	}
	_, info, err := c.resolveTabSession(ctx, target.ID(targetID))
	return info, err
}

// InsertCSS adds a <style> element holding css to the tab. The insertion is
// also registered for every future document of the tab; with document_start
// it runs before page scripts on reloads and navigations.
//
// cssOrigin is validated and recorded as data-tipshield-origin only. The DevTools
// protocol cannot add user-origin sheets, so every rule lands in the author
// cascade and a page rule that is itself !important with a higher
// specificity still wins over a hide rule.
func (c *Client) InsertCSS(ctx context.Context, targetID, css, cssOrigin, runAt string) error {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return newError(CodeValidation, "target id is required", nil)
	}
	if strings.TrimSpace(css) == "" {
		return newError(CodeValidation, "css is required", nil)
	}
	switch cssOrigin {
	case CSSOriginUser, CSSOriginAuthor:
	default:
		return newError(CodeValidation, "unsupported css origin: "+cssOrigin, nil)
	}
	switch runAt {
	case RunAtDocumentStart, RunAtDocumentEnd, RunAtDocumentIdle:
	default:
		return newError(CodeValidation, "unsupported run_at: "+runAt, nil)
	}

	inj := styleInjection{CSS: css, Origin: cssOrigin, RunAt: runAt}
	tid := target.ID(targetID)
	err := c.withTab(ctx, tid, func(cdp *rawCDP, session *tabSession, sessionID string) error {
		if err := c.installStyle(ctx, cdp, sessionID, tid, inj); err != nil {
			return err
		}
		session.mu.Lock()
		session.styles = append(session.styles, inj)
		session.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.styleMemo[tid] = append(c.styleMemo[tid], inj)
	c.mu.Unlock()
	slog.Debug("cdpcontrol css inserted", "target_id", targetID, "origin", cssOrigin, "run_at", runAt)
	return nil
}

// installStyle registers inj for future documents and applies it to the
// current one. A failed apply takes the registration back out, so a retry
// or a later replay never leaves the rule registered twice.
func (c *Client) installStyle(ctx context.Context, cdp *rawCDP, sessionID string, targetID target.ID, inj styleInjection) error {
	scriptID, err := cdp.addScriptToEvaluateOnNewDocument(ctx, sessionID, jsStyleOnNewDocument(inj))
	if err != nil {
		return newError(CodeEvalFailure, "failed to register "+inj.RunAt+" style", err)
	}
	if err := c.evalOnSession(ctx, cdp, sessionID, targetID, jsInsertStyle(inj), nil); err != nil {
		if rmErr := cdp.removeScriptToEvaluateOnNewDocument(ctx, sessionID, scriptID); rmErr != nil {
			// The registration goes away with the session when it is dead.
			slog.Warn("cdpcontrol style rollback failed", "target_id", targetID, "script_id", scriptID, "error", rmErr)
		}
		return err
	}
	return nil
}

// withTab runs fn with an attached session for targetID, retrying once
// after reconnect or tab refresh on transient failures.
func (c *Client) withTab(ctx context.Context, targetID target.ID, fn func(cdp *rawCDP, session *tabSession, sessionID string) error) error {
	lock := c.tabLock(targetID)
	lock.Lock()
	defer lock.Unlock()

	slog.Debug("cdpcontrol op on tab", "target_id", targetID)
	err := c.runOnTab(ctx, targetID, fn)
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	slog.Warn("cdpcontrol retry after transient failure", "target_id", targetID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "target_id", targetID, "error", recErr)
			return recErr
		}
	} else {
		if syncErr := c.refreshTabs(ctx); syncErr != nil {
			slog.Warn("cdpcontrol tab refresh failed during retry", "target_id", targetID, "error", syncErr)
		}
	}
	return c.runOnTab(ctx, targetID, fn)
}

func (c *Client) runOnTab(ctx context.Context, targetID target.ID, fn func(cdp *rawCDP, session *tabSession, sessionID string) error) error {
	session, _, err := c.resolveTabSession(ctx, targetID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, targetID)
	if err != nil {
		return err
	}
	if err := fn(cdp, session, sessionID); err != nil {
		if !c.asCode(err, CodeValidation) {
			// Reset session so a fresh attach happens on retry.
			session.mu.Lock()
			session.sessionID = ""
			session.mu.Unlock()
		}
		return err
	}
	return nil
}

func (c *Client) evalOnSession(ctx context.Context, cdp *rawCDP, sessionID string, targetID target.ID, js string, out any) error {
	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", targetID, "error", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
// A fresh session replays the styles previously inserted into the tab.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, targetID target.ID) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, string(targetID))
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", targetID, "session_id", sid)

	for _, inj := range session.styles {
		if _, err := cdp.addScriptToEvaluateOnNewDocument(ctx, sid, jsStyleOnNewDocument(inj)); err != nil {
			slog.Warn("cdpcontrol style replay failed", "target_id", targetID, "error", err)
		}
	}
	return sid, nil
}

func (c *Client) resolveTabSession(ctx context.Context, targetID target.ID) (*tabSession, TabInfo, error) {
	session, info, found := c.lookupTabSession(targetID)
	if found {
		return session, info, nil
	}

	if err := c.refreshTabs(ctx); err != nil {
		return nil, TabInfo{}, err
	}

	session, info, found = c.lookupTabSession(targetID)
	if found {
		return session, info, nil
	}

	return nil, TabInfo{}, newError(CodeTabNotFound, "tab not found: "+string(targetID), nil)
}

func (c *Client) lookupTabSession(targetID target.ID) (*tabSession, TabInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.tabs[targetID]
	if session == nil {
		return nil, TabInfo{}, false
	}
	return session, session.info, true
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}

	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	expected := make(map[target.ID]TabInfo)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.tabFilter != "" && !strings.Contains(strings.ToLower(t.URL), c.tabFilter) {
			continue
		}
		expected[t.TargetID] = TabInfo{
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
			Hostname: hostnameFromURL(t.URL),
		}
	}

	for targetID := range c.tabs {
		if _, ok := expected[targetID]; ok {
			continue
		}
		delete(c.tabs, targetID)
	}
	for targetID := range c.styleMemo {
		if _, ok := expected[targetID]; !ok {
			delete(c.styleMemo, targetID)
		}
	}

	for targetID, info := range expected {
		session := c.tabs[targetID]
		if session != nil {
			session.info = info
			continue
		}
		// A tab seen again after reconnect gets its styles back on attach.
		c.tabs[targetID] = &tabSession{info: info, styles: append([]styleInjection(nil), c.styleMemo[targetID]...)}
	}

	// Prune tab locks for tabs no longer present.
	c.tabLocksMu.Lock()
	for id := range c.tabLocks {
		if _, ok := c.tabs[id]; !ok {
			delete(c.tabLocks, id)
		}
	}
	c.tabLocksMu.Unlock()

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "tabs", len(c.tabs))
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) tabLock(targetID target.ID) *sync.Mutex {
	c.tabLocksMu.Lock()
	defer c.tabLocksMu.Unlock()
	m, ok := c.tabLocks[targetID]
	if !ok {
		m = &sync.Mutex{}
		c.tabLocks[targetID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeTabNotFound, CodeValidation:
		return false
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

func hostnameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
