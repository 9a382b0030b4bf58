// Package controller is the operation layer behind the HTTP API. It
// validates input and delegates to the filter store, the tab styler and
// the rewards service.
package controller

import (
	"context"
	"strings"

	"github.com/dgnsrekt/tipshield/internal/cdpcontrol"
	"github.com/dgnsrekt/tipshield/internal/cosmetic"
	"github.com/dgnsrekt/tipshield/internal/messaging"
	"github.com/dgnsrekt/tipshield/internal/rewards"
)

// Tabs lists page tabs and injects styles into them.
type Tabs interface {
	cosmetic.Styler
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	Tab(ctx context.Context, targetID string) (cdpcontrol.TabInfo, error)
}

// ApplyResult reports a filter projection onto one tab.
type ApplyResult struct {
	TargetID string `json:"target_id"`
	Hostname string `json:"hostname"`
	Injected int    `json:"injected"`
}

// Service wraps the filter store, tab styling and rewards operations.
type Service struct {
	tabs      Tabs
	filters   *cosmetic.Store
	rewards   *rewards.Service
	responder *messaging.Responder
}

func NewService(tabs Tabs, filters *cosmetic.Store, rw *rewards.Service) *Service {
	return &Service{
		tabs:      tabs,
		filters:   filters,
		rewards:   rw,
		responder: messaging.NewResponder(rw),
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

// ListFilters returns every stored origin. A store that was never written
// reads as empty.
func (s *Service) ListFilters(ctx context.Context) (cosmetic.FilterList, error) {
	list, ok, err := s.filters.Filters(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || list == nil {
		return cosmetic.FilterList{}, nil
	}
	return list, nil
}

func (s *Service) FiltersFor(ctx context.Context, origin string) ([]cosmetic.FilterRecord, error) {
	if err := s.requireNonEmpty(origin, "origin"); err != nil {
		return nil, err
	}
	return s.filters.FiltersFor(ctx, strings.TrimSpace(origin))
}

// AddFilter stores selector for origin and returns the origin's list.
// The selector is stored as given.
func (s *Service) AddFilter(ctx context.Context, origin, selector string) ([]cosmetic.FilterRecord, error) {
	if err := s.requireNonEmpty(origin, "origin"); err != nil {
		return nil, err
	}
	if err := s.requireNonEmpty(selector, "selector"); err != nil {
		return nil, err
	}
	origin = strings.TrimSpace(origin)
	if err := s.filters.AddFilter(ctx, origin, selector); err != nil {
		return nil, err
	}
	return s.filters.FiltersFor(ctx, origin)
}

func (s *Service) RemoveFilter(ctx context.Context, origin string) error {
	if err := s.requireNonEmpty(origin, "origin"); err != nil {
		return err
	}
	return s.filters.RemoveFilter(ctx, strings.TrimSpace(origin))
}

func (s *Service) ClearFilters(ctx context.Context) error {
	return s.filters.ClearAllFilters(ctx)
}

func (s *Service) ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	return s.tabs.ListTabs(ctx)
}

// ApplyFilters projects the filters stored for the tab's hostname onto it.
func (s *Service) ApplyFilters(ctx context.Context, targetID string) (ApplyResult, error) {
	if err := s.requireNonEmpty(targetID, "target_id"); err != nil {
		return ApplyResult{}, err
	}
	tab, err := s.tabs.Tab(ctx, strings.TrimSpace(targetID))
	if err != nil {
		return ApplyResult{}, err
	}
	n, err := s.filters.ApplyFiltersToTab(ctx, s.tabs, cosmetic.Tab{ID: tab.TargetID, Hostname: tab.Hostname})
	return ApplyResult{TargetID: tab.TargetID, Hostname: tab.Hostname, Injected: n}, err
}

func (s *Service) RewardsSettings(ctx context.Context) (rewards.Settings, error) {
	return s.rewards.Settings(ctx)
}

func (s *Service) SetRewardsEnabled(ctx context.Context, enabled bool) (rewards.Settings, error) {
	return s.rewards.SetRewardsEnabled(ctx, enabled)
}

func (s *Service) SetInlineTip(ctx context.Context, site string, enabled bool) (rewards.Settings, error) {
	if err := s.requireNonEmpty(site, "site"); err != nil {
		return rewards.Settings{}, err
	}
	return s.rewards.SetInlineTip(ctx, strings.TrimSpace(site), enabled)
}

// HandleMessage answers one message from a tip injector.
func (s *Service) HandleMessage(ctx context.Context, msg messaging.Message) messaging.Reply {
	return s.responder.Respond(ctx, msg)
}
