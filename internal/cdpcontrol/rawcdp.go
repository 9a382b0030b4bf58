package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const (
	versionTimeout = 5 * time.Second
	listTimeout    = 10 * time.Second
)

var errConnClosed = errors.New("connection closed")

// rawCDP speaks the DevTools protocol over a single browser websocket and
// multiplexes page targets as flat sessions. It skips chromedp's session
// initialisation (SetAutoAttach, SetDiscoverTargets, DOM.Enable) so the
// controller can share a browser with the tip injector without fighting
// over auto-attach.
type rawCDP struct {
	httpBase string // e.g. "http://127.0.0.1:9220"

	// connMu guards conn and serialises frame writes.
	connMu sync.Mutex
	conn   net.Conn
	nextID atomic.Int64

	waitMu  sync.Mutex
	waiters map[int64]chan cdpMessage
	dead    bool

	subMu sync.RWMutex
	subs  map[string]map[int64]eventFunc
}

type eventFunc func(sessionID string, params json.RawMessage)

// cdpMessage is any frame the browser sends. Replies carry ID, events carry
// Method.
type cdpMessage struct {
	ID        int64           `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *cdpError       `json:"error,omitempty"`
}

type cdpCommand struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionId,omitempty"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
}

type cdpError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *cdpError) Error() string { return e.Message }

func newRawCDP(httpBase string) *rawCDP {
	return &rawCDP{
		httpBase: strings.TrimRight(httpBase, "/"),
		waiters:  make(map[int64]chan cdpMessage),
		subs:     make(map[string]map[int64]eventFunc),
	}
}

// connect dials the browser-level websocket advertised by /json/version.
func (r *rawCDP) connect(ctx context.Context) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil {
		return nil
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := r.getJSON(ctx, "/json/version", versionTimeout, &version); err != nil {
		return fmt.Errorf("rawcdp: browser ws url: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return errors.New("rawcdp: browser ws url: empty webSocketDebuggerUrl")
	}

	slog.Debug("rawcdp connecting", "ws_url", version.WebSocketDebuggerURL)
	conn, _, _, err := ws.Dial(ctx, version.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("rawcdp: dial: %w", err)
	}
	r.conn = conn

	r.waitMu.Lock()
	r.dead = false
	r.waitMu.Unlock()

	go r.readLoop(conn)
	return nil
}

func (r *rawCDP) close() {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

func (r *rawCDP) readLoop(conn net.Conn) {
	defer r.failWaiters()
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("rawcdp read loop exit", "error", err)
			return
		}
		var msg cdpMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("rawcdp dropped frame", "error", err)
			continue
		}
		switch {
		case msg.ID != 0:
			r.deliver(msg)
		case msg.Method != "":
			r.publish(msg.Method, msg.SessionID, msg.Params)
		}
	}
}

func (r *rawCDP) deliver(msg cdpMessage) {
	r.waitMu.Lock()
	ch, ok := r.waiters[msg.ID]
	delete(r.waiters, msg.ID)
	r.waitMu.Unlock()
	if ok {
		ch <- msg
	}
}

// failWaiters wakes every in-flight call once the socket is gone.
func (r *rawCDP) failWaiters() {
	r.waitMu.Lock()
	defer r.waitMu.Unlock()
	r.dead = true
	for id, ch := range r.waiters {
		close(ch)
		delete(r.waiters, id)
	}
}

func (r *rawCDP) wait(id int64) (chan cdpMessage, error) {
	r.waitMu.Lock()
	defer r.waitMu.Unlock()
	if r.dead {
		return nil, errConnClosed
	}
	ch := make(chan cdpMessage, 1)
	r.waiters[id] = ch
	return ch, nil
}

func (r *rawCDP) unwait(id int64) {
	r.waitMu.Lock()
	delete(r.waiters, id)
	r.waitMu.Unlock()
}

// call sends one command, on sessionID when it is set, and decodes the
// result into out when out is non-nil. Protocol errors and context errors
// are wrapped with the method name.
func (r *rawCDP) call(ctx context.Context, sessionID, method string, params, out any) error {
	r.connMu.Lock()
	conn := r.conn
	r.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("rawcdp: %s: not connected", method)
	}

	id := r.nextID.Add(1)
	frame, err := json.Marshal(cdpCommand{ID: id, SessionID: sessionID, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("rawcdp: %s: marshal: %w", method, err)
	}
	ch, err := r.wait(id)
	if err != nil {
		return fmt.Errorf("rawcdp: %s: %w", method, err)
	}
	defer r.unwait(id)

	r.connMu.Lock()
	err = wsutil.WriteClientText(conn, frame)
	r.connMu.Unlock()
	if err != nil {
		return fmt.Errorf("rawcdp: %s: send: %w", method, err)
	}

	var msg cdpMessage
	select {
	case m, ok := <-ch:
		if !ok {
			return fmt.Errorf("rawcdp: %s: %w", method, errConnClosed)
		}
		msg = m
	case <-ctx.Done():
		return fmt.Errorf("rawcdp: %s: %w", method, ctx.Err())
	}

	if msg.Error != nil {
		return fmt.Errorf("rawcdp: %s: %w", method, msg.Error)
	}
	if out == nil || len(msg.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Result, out); err != nil {
		return fmt.Errorf("rawcdp: %s: decode: %w", method, err)
	}
	return nil
}

// attachToTarget opens a flat session on a page target.
func (r *rawCDP) attachToTarget(ctx context.Context, targetID string) (string, error) {
	var ret target.AttachToTargetReturns
	params := target.AttachToTarget(target.ID(targetID)).WithFlatten(true)
	if err := r.call(ctx, "", target.CommandAttachToTarget, params, &ret); err != nil {
		return "", err
	}
	if ret.SessionID == "" {
		return "", fmt.Errorf("rawcdp: %s: empty session id", target.CommandAttachToTarget)
	}
	return string(ret.SessionID), nil
}

// detachFromTarget leaves the session without closing the target.
func (r *rawCDP) detachFromTarget(ctx context.Context, sessionID string) error {
	params := target.DetachFromTarget().WithSessionID(target.SessionID(sessionID))
	return r.call(ctx, "", target.CommandDetachFromTarget, params, nil)
}

// evaluate runs js on the session and returns its string result. Non-string
// results come back as raw JSON text.
func (r *rawCDP) evaluate(ctx context.Context, sessionID, js string) (string, error) {
	params := runtime.Evaluate(js).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		WithAllowUnsafeEvalBlockedByCSP(true)

	// RemoteObject.Value is a jsontext.Value, so the reply is decoded locally.
	var ret struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := r.call(ctx, sessionID, runtime.CommandEvaluate, params, &ret); err != nil {
		return "", err
	}
	if ret.ExceptionDetails != nil {
		return "", fmt.Errorf("rawcdp: eval exception: %s", ret.ExceptionDetails.Text)
	}

	var s string
	if err := json.Unmarshal(ret.Result.Value, &s); err != nil {
		return string(ret.Result.Value), nil
	}
	return s, nil
}

// addScriptToEvaluateOnNewDocument registers source to run in every new
// document of the session before any page script. The registration lives as
// long as the session stays attached.
func (r *rawCDP) addScriptToEvaluateOnNewDocument(ctx context.Context, sessionID, source string) (page.ScriptIdentifier, error) {
	var ret page.AddScriptToEvaluateOnNewDocumentReturns
	params := page.AddScriptToEvaluateOnNewDocument(source)
	if err := r.call(ctx, sessionID, page.CommandAddScriptToEvaluateOnNewDocument, params, &ret); err != nil {
		return "", err
	}
	return ret.Identifier, nil
}

func (r *rawCDP) removeScriptToEvaluateOnNewDocument(ctx context.Context, sessionID string, id page.ScriptIdentifier) error {
	params := page.RemoveScriptToEvaluateOnNewDocument(id)
	return r.call(ctx, sessionID, page.CommandRemoveScriptToEvaluateOnNewDocument, params, nil)
}

// listTargets reads the open targets from /json/list.
func (r *rawCDP) listTargets(ctx context.Context) ([]*target.Info, error) {
	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := r.getJSON(ctx, "/json/list", listTimeout, &entries); err != nil {
		return nil, err
	}

	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{
			TargetID: target.ID(e.ID),
			Type:     e.Type,
			Title:    e.Title,
			URL:      e.URL,
		})
	}
	return out, nil
}

// getJSON fetches one of the browser's HTTP discovery endpoints.
func (r *rawCDP) getJSON(ctx context.Context, path string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.httpBase+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rawcdp: %s: HTTP %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rawcdp: %s: decode: %w", path, err)
	}
	return nil
}

// subscribe registers fn for a CDP event method and returns the matching
// unsubscribe func.
func (r *rawCDP) subscribe(method string, fn eventFunc) func() {
	id := r.nextID.Add(1)
	r.subMu.Lock()
	if r.subs[method] == nil {
		r.subs[method] = make(map[int64]eventFunc)
	}
	r.subs[method][id] = fn
	r.subMu.Unlock()
	return func() {
		r.subMu.Lock()
		delete(r.subs[method], id)
		r.subMu.Unlock()
	}
}

func (r *rawCDP) publish(method, sessionID string, params json.RawMessage) {
	r.subMu.RLock()
	fns := make([]eventFunc, 0, len(r.subs[method]))
	for _, fn := range r.subs[method] {
		fns = append(fns, fn)
	}
	r.subMu.RUnlock()
	for _, fn := range fns {
		fn(sessionID, params)
	}
}
