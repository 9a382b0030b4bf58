package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/tipshield/internal/tipinject"
)

// ErrHelperMissing is returned when the page has no tip helper installed,
// typically right after a navigation.
var ErrHelperMissing = errors.New("cdp: tip helper not installed")

// tabPage runs tip helper calls in one chromedp tab.
type tabPage struct {
	tabCtx  context.Context
	timeout time.Duration
}

func (p *tabPage) Scan(ctx context.Context, layouts []tipinject.Layout) ([]tipinject.ContainerState, error) {
	expr, err := tipinject.ScanExpression(layouts)
	if err != nil {
		return nil, err
	}
	var raw *string
	if err := p.eval(ctx, expr, &raw); err != nil {
		return nil, fmt.Errorf("cdp: scan: %w", err)
	}
	return decodeScan(raw)
}

func (p *tabPage) Apply(ctx context.Context, ops []tipinject.Op) (tipinject.ApplyResult, error) {
	expr, err := tipinject.ApplyExpression(ops)
	if err != nil {
		return tipinject.ApplyResult{}, err
	}
	var raw *string
	if err := p.eval(ctx, expr, &raw); err != nil {
		return tipinject.ApplyResult{}, fmt.Errorf("cdp: apply: %w", err)
	}
	return decodeApply(raw)
}

// eval runs expr in the tab, bounded by the page timeout and by ctx.
func (p *tabPage) eval(ctx context.Context, expr string, res any) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, res))
}

func decodeScan(raw *string) ([]tipinject.ContainerState, error) {
	if raw == nil {
		return nil, ErrHelperMissing
	}
	var states []tipinject.ContainerState
	if err := json.Unmarshal([]byte(*raw), &states); err != nil {
		return nil, fmt.Errorf("cdp: decode scan: %w", err)
	}
	return states, nil
}

func decodeApply(raw *string) (tipinject.ApplyResult, error) {
	if raw == nil {
		return tipinject.ApplyResult{}, ErrHelperMissing
	}
	var res tipinject.ApplyResult
	if err := json.Unmarshal([]byte(*raw), &res); err != nil {
		return tipinject.ApplyResult{}, fmt.Errorf("cdp: decode apply: %w", err)
	}
	return res, nil
}

// installHelper exposes the event binding, registers the helper for new
// documents and installs it in the current one. The binding goes first so
// the helper's ready report is delivered.
func installHelper() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := runtime.AddBinding(tipinject.BindingName).Do(ctx); err != nil {
			return fmt.Errorf("add binding: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(tipinject.HelperScript).Do(ctx); err != nil {
			return fmt.Errorf("register helper: %w", err)
		}
		_, exc, err := runtime.Evaluate(tipinject.HelperScript).Do(ctx)
		if err != nil {
			return fmt.Errorf("evaluate helper: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("evaluate helper: %s", exc.Text)
		}
		return nil
	})
}
