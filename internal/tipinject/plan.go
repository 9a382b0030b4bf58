package tipinject

// ContainerState is one matched container as seen by a page scan.
type ContainerState struct {
	Layout  string `json:"layout"`
	Index   int    `json:"index"`
	Markers int    `json:"markers"`
	HasSlot bool   `json:"hasSlot"`
}

type OpKind string

const (
	OpInsert OpKind = "insert"
	OpRemove OpKind = "remove"
)

// Op is one DOM change. Action is set for inserts.
type Op struct {
	Kind   OpKind     `json:"kind"`
	Layout string     `json:"layout"`
	Index  int        `json:"index"`
	Action *TipAction `json:"action,omitempty"`
}

// Plan reconciles scanned containers with enabled: insert where enabled and
// unmarked, remove where disabled and marked exactly once, leave the rest.
// A container without a slot gets no insert.
func Plan(states []ContainerState, enabled bool, actions map[string]*TipAction) []Op {
	var ops []Op
	for _, st := range states {
		switch {
		case enabled && st.Markers == 0:
			if !st.HasSlot {
				continue
			}
			action, ok := actions[st.Layout]
			if !ok {
				continue
			}
			ops = append(ops, Op{Kind: OpInsert, Layout: st.Layout, Index: st.Index, Action: action})
		case !enabled && st.Markers == 1:
			ops = append(ops, Op{Kind: OpRemove, Layout: st.Layout, Index: st.Index})
		}
	}
	return ops
}
