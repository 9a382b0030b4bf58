package cdp

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// TabInfo describes an attached tab.
type TabInfo struct {
	TargetID   string
	URL        string
	Hostname   string
	AttachedAt time.Time
}

// TabRegistry maps CDP target IDs to tab metadata.
type TabRegistry struct {
	tabs map[target.ID]*TabInfo
	mu   sync.RWMutex
	now  func() time.Time
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*TabInfo), now: time.Now}
}

// Register records a tab or updates the URL of a known one. The attach
// time of a known tab is kept.
func (r *TabRegistry) Register(targetID target.ID, rawURL string) *TabInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.tabs[targetID]
	if !ok {
		info = &TabInfo{TargetID: string(targetID), AttachedAt: r.now()}
		r.tabs[targetID] = info
	}
	info.URL = rawURL
	info.Hostname = hostnameOf(rawURL)
	cp := *info
	return &cp
}

func (r *TabRegistry) Get(targetID target.ID) (*TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return nil, false
	}
	cp := *info
	return &cp, true
}

func (r *TabRegistry) Remove(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// List returns the attached tabs ordered by target ID.
func (r *TabRegistry) List() []TabInfo {
	r.mu.RLock()
	out := make([]TabInfo, 0, len(r.tabs))
	for _, info := range r.tabs {
		out = append(out, *info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
