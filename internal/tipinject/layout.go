package tipinject

// SlotMode says where a tip action goes inside its slot element.
type SlotMode string

const (
	// SlotPrepend inserts before the slot's first element child.
	SlotPrepend SlotMode = "prepend"
	// SlotFirstChildAppend appends to the slot's first element child.
	SlotFirstChildAppend SlotMode = "firstChildAppend"
)

// Metadata sources for a layout's click handler.
const (
	SourceAnchorHref = "anchorHref"
	SourcePathname   = "pathname"
)

// Layout is one DOM variant of the host page that gets a tip action.
type Layout struct {
	Name        string   `json:"name"`
	SlotClass   string   `json:"slotClass"`
	Slot        SlotMode `json:"slot"`
	AnchorClass string   `json:"anchorClass,omitempty"`
	Source      string   `json:"source"`

	extraClasses string
	variant      func(*TipAction)
}

const (
	LayoutPlayer           = "playbackSoundBadge"
	LayoutSoundBody        = "sound__body"
	LayoutListenEngagement = "listenEngagement"
)

// Layouts returns the three SoundCloud layouts in reconciliation order.
func Layouts() []Layout {
	return []Layout{
		{
			Name:        LayoutPlayer,
			SlotClass:   "playbackSoundBadge__actions",
			Slot:        SlotPrepend,
			AnchorClass: "playbackSoundBadge__avatar",
			Source:      SourceAnchorHref,
		},
		{
			Name:         LayoutSoundBody,
			SlotClass:    "soundActions",
			Slot:         SlotFirstChildAppend,
			AnchorClass:  "soundTitle__username",
			Source:       SourceAnchorHref,
			extraClasses: "sc-button sc-button-small sc-button-responsive",
			variant: func(a *TipAction) {
				a.Find(tipIconContainerClass).Children[0].Unset("margin-top")
				button := a.Find(tipButtonClass)
				button.Set("font-size", "11px")
				button.Unset("color")
				count := a.Find(tipActionCountClass)
				count.Unset("font-weight")
				count.Unset("color")
				count.Set("font-size", "11px")
			},
		},
		{
			Name:         LayoutListenEngagement,
			SlotClass:    "soundActions",
			Slot:         SlotFirstChildAppend,
			Source:       SourcePathname,
			extraClasses: "sc-button sc-button-medium sc-button-responsive",
			variant: func(a *TipAction) {
				a.Find(tipIconContainerClass).Children[0].Unset("margin-top")
				button := a.Find(tipButtonClass)
				button.Set("font-size", "14px")
				button.Set("color", "#333")
				count := a.Find(tipActionCountClass)
				count.Set("font-weight", "100")
				count.Set("color", "#333")
				count.Set("font-size", "14px")
			},
		},
	}
}

// BuildTipAction returns the tip action tree for l.
func BuildTipAction(l Layout, labels Labels) *TipAction {
	a := newTipAction(labels)
	a.Layout = l.Name
	a.AnchorClass = l.AnchorClass
	if l.extraClasses != "" {
		a.Host.Class += " " + l.extraClasses
	}
	if l.variant != nil {
		l.variant(a)
	}
	return a
}
