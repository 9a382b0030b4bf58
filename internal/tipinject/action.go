package tipinject

import "strings"

// MarkerClass tags every injected tip action. At most one marker is kept per
// container.
const MarkerClass = "action-brave-tip"

const (
	tipActionCountClass   = "SoundCloudTip-actionCount"
	tipIconContainerClass = "IconContainer"
	tipButtonClass        = "SoundCloudTip-actionButton"
	tipHoverClasses       = "tooltipped tooltipped-sw tooltipped-align-right-1"
)

const tipIconContent = `url('data:image/svg+xml;utf8,<svg version="1.1" id="Layer_1" xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" x="0px" y="0px" viewBox="0 0 105 100" style="enable-background:new 0 0 105 100;" xml:space="preserve"><style type="text/css">.st1{fill:%23662D91;}.st2{fill:%239E1F63;}.st3{fill:%23FF5000;}.st4{fill:%23FFFFFF;stroke:%23FF5000;stroke-width:0.83;stroke-miterlimit:10;}</style><title>BAT_icon</title><g id="Layer_2_1_"><g id="Layer_1-2"><polygon class="st1" points="94.8,82.6 47.4,55.4 0,82.9 "/><polygon class="st2" points="47.4,0 47.1,55.4 94.8,82.6 "/><polygon class="st3" points="0,82.9 47.2,55.9 47.4,0 "/><polygon class="st4" points="47.1,33.7 28,66.5 66.7,66.5 "/></g></g></svg>')`

// StyleDecl is one inline style property, kebab-cased.
type StyleDecl struct {
	Prop  string `json:"p"`
	Value string `json:"v"`
}

// Node is an element the page helper materializes.
type Node struct {
	Tag      string            `json:"tag"`
	Class    string            `json:"className,omitempty"`
	Style    []StyleDecl       `json:"style,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	OnClick  bool              `json:"onClick,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// Set replaces prop or appends it.
func (n *Node) Set(prop, value string) {
	for i := range n.Style {
		if n.Style[i].Prop == prop {
			n.Style[i].Value = value
			return
		}
	}
	n.Style = append(n.Style, StyleDecl{Prop: prop, Value: value})
}

// Unset drops prop.
func (n *Node) Unset(prop string) {
	out := n.Style[:0]
	for _, d := range n.Style {
		if d.Prop != prop {
			out = append(out, d)
		}
	}
	n.Style = out
}

// Get returns the value of prop and whether it is set.
func (n *Node) Get(prop string) (string, bool) {
	for _, d := range n.Style {
		if d.Prop == prop {
			return d.Value, true
		}
	}
	return "", false
}

// TipAction is the host element plus the subtree attached under its open
// shadow root.
type TipAction struct {
	Layout      string  `json:"layout"`
	AnchorClass string  `json:"anchorClass,omitempty"`
	Host        *Node   `json:"host"`
	Shadow      []*Node `json:"shadow"`
}

// Find returns the first node (host first, then shadow tree depth-first)
// whose class list contains class.
func (a *TipAction) Find(class string) *Node {
	if hasClass(a.Host, class) {
		return a.Host
	}
	for _, n := range a.Shadow {
		if found := findNode(n, class); found != nil {
			return found
		}
	}
	return nil
}

func findNode(n *Node, class string) *Node {
	if hasClass(n, class) {
		return n
	}
	for _, c := range n.Children {
		if found := findNode(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *Node, class string) bool {
	if n == nil {
		return false
	}
	for _, c := range strings.Fields(n.Class) {
		if c == class {
			return true
		}
	}
	return false
}

// Labels are the user-visible strings of a tip action.
type Labels struct {
	Tip   string
	Hover string
}

// newTipAction builds the default tip action tree.
func newTipAction(labels Labels) *TipAction {
	host := &Node{
		Tag:   "div",
		Class: "SoundCloudTip-action js-tooltip " + MarkerClass + " " + tipHoverClasses,
		Style: []StyleDecl{
			{"display", "inline-block"},
			{"min-width", "40px"},
		},
		Attrs: map[string]string{"aria-label": labels.Hover},
	}

	icon := &Node{
		Tag:   "span",
		Class: "Icon Icon--medium",
		Style: []StyleDecl{
			{"background", "transparent"},
			{"content", tipIconContent},
			{"display", "inline-block"},
			{"font-size", "18px"},
			{"font-style", "normal"},
			{"height", "16px"},
			{"margin-top", "5px"},
			{"position", "relative"},
			{"vertical-align", "baseline"},
			{"width", "16px"},
		},
	}
	iconContainer := &Node{
		Tag:   "div",
		Class: tipIconContainerClass + " js-tooltip",
		Style: []StyleDecl{
			{"display", "inline-block"},
			{"line-height", "0"},
			{"position", "relative"},
			{"vertical-align", "middle"},
		},
		Children: []*Node{icon},
	}
	count := &Node{
		Tag:   "span",
		Class: tipActionCountClass,
		Style: []StyleDecl{
			{"color", "#657786"},
			{"display", "inline-block"},
			{"font-size", "12px"},
			{"font-weight", "bold"},
			{"line-height", "1"},
			{"margin-left", "1px"},
			{"position", "relative"},
			{"vertical-align", "text-bottom"},
		},
		Children: []*Node{{
			Tag:   "span",
			Class: "SoundCloudTip-actionCountForPresentation",
			Text:  labels.Tip,
		}},
	}
	button := &Node{
		Tag:   "button",
		Class: tipButtonClass + " u-textUserColorHover js-actionButton",
		Style: []StyleDecl{
			{"background", "transparent"},
			{"border", "0"},
			{"color", "#657786"},
			{"cursor", "pointer"},
			{"display", "inline-block"},
			{"font-size", "16px"},
			{"line-height", "1"},
			{"outline", "0"},
			{"padding", "0 2px"},
			{"position", "relative"},
		},
		Attrs:    map[string]string{"type": "button"},
		OnClick:  true,
		Children: []*Node{iconContainer, count},
	}
	hover := &Node{
		Tag:  "style",
		Text: "." + tipButtonClass + " :hover { color: #FB542B }",
	}

	return &TipAction{Host: host, Shadow: []*Node{button, hover}}
}
