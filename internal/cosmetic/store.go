// Package cosmetic persists per-origin CSS selectors to hide and projects
// them into style injections on browser tabs.
package cosmetic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/tipshield/internal/kvstore"
)

// StorageKey is the single persisted key holding the whole filter mapping.
const StorageKey = "cosmeticFilterList"

const (
	CSSOriginUser      = "user"
	RunAtDocumentStart = "document_start"
)

// FilterRecord is one stored cosmetic filter.
type FilterRecord struct {
	Filter       string `json:"filter"`
	IsIdempotent bool   `json:"isIdempotent"`
	// Applied is always written false and never consulted.
	Applied bool `json:"applied"`
}

// FilterList maps an origin to its filters in insertion order.
type FilterList map[string][]FilterRecord

// Tab identifies the tab a projection targets.
type Tab struct {
	ID       string
	Hostname string
}

// Styler injects CSS into a tab.
type Styler interface {
	InsertCSS(ctx context.Context, tabID, css, cssOrigin, runAt string) error
}

// Store is the cosmetic filter store.
type Store struct {
	kv kvstore.Store
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

// AddFilter appends selector to origin's list, creating the list if absent.
func (s *Store) AddFilter(ctx context.Context, origin, selector string) error {
	rec := FilterRecord{
		Filter:       selector,
		IsIdempotent: IsIdempotent(selector),
		Applied:      false,
	}
	return s.update(ctx, func(list FilterList) {
		list[origin] = append(list[origin], rec)
	})
}

// RemoveFilter deletes every filter stored for origin.
func (s *Store) RemoveFilter(ctx context.Context, origin string) error {
	return s.update(ctx, func(list FilterList) {
		delete(list, origin)
	})
}

// ClearAllFilters replaces the whole mapping with an empty one.
func (s *Store) ClearAllFilters(ctx context.Context) error {
	return s.kv.Set(ctx, StorageKey, []byte("{}"))
}

// Filters returns the whole mapping. ok is false when nothing was ever stored.
func (s *Store) Filters(ctx context.Context) (FilterList, bool, error) {
	raw, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil || !ok {
		return FilterList{}, false, err
	}
	list, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return list, true, nil
}

// FiltersFor returns the records stored for origin, nil when none.
func (s *Store) FiltersFor(ctx context.Context, origin string) ([]FilterRecord, error) {
	list, _, err := s.Filters(ctx)
	if err != nil {
		return nil, err
	}
	return list[origin], nil
}

// ApplyFiltersToTab injects one display:none rule per record stored for the
// tab's hostname, in list order. It returns the number of injections.
func (s *Store) ApplyFiltersToTab(ctx context.Context, styler Styler, tab Tab) (int, error) {
	list, ok, err := s.Filters(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		slog.Debug("cosmetic apply: no cosmetic filter store yet", "tab_id", tab.ID)
		return 0, nil
	}

	applied := 0
	for _, rec := range list[tab.Hostname] {
		slog.Debug("cosmetic apply: applying filter", "tab_id", tab.ID, "hostname", tab.Hostname, "filter", rec.Filter)
		if err := styler.InsertCSS(ctx, tab.ID, HideRule(rec.Filter), CSSOriginUser, RunAtDocumentStart); err != nil {
			return applied, fmt.Errorf("cosmetic apply %q: %w", rec.Filter, err)
		}
		applied++
	}
	return applied, nil
}

// HideRule renders the style rule hiding everything selector matches.
func HideRule(selector string) string {
	return selector + " {display:none!important;}"
}

func (s *Store) update(ctx context.Context, mutate func(FilterList)) error {
	return s.kv.Update(ctx, StorageKey, func(old []byte, ok bool) ([]byte, error) {
		list := FilterList{}
		if ok {
			var err error
			if list, err = decode(old); err != nil {
				return nil, err
			}
		}
		mutate(list)
		return json.Marshal(list)
	})
}

func decode(raw []byte) (FilterList, error) {
	list := FilterList{}
	if len(raw) == 0 || string(raw) == "null" {
		return list, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("cosmetic: decode %s: %w", StorageKey, err)
	}
	return list, nil
}
