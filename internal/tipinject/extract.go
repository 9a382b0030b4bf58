package tipinject

import (
	"strings"

	"github.com/dgnsrekt/tipshield/internal/messaging"
)

// Click is what the page reports when a tip button is pressed.
type Click struct {
	Layout   string `json:"layout"`
	Href     string `json:"href"`
	Pathname string `json:"pathname"`
}

// ExtractMetaData derives the tipped creator from a click. It returns nil
// when the layout's anchor was absent or the href or pathname carried no
// profile segment, so the click is dropped without a message.
func ExtractMetaData(l Layout, c Click) *messaging.MediaMetaData {
	var user string
	switch l.Source {
	case SourcePathname:
		user = strings.Split(strings.TrimPrefix(c.Pathname, "/"), "/")[0]
	case SourceAnchorHref:
		if c.Href == "" {
			return nil
		}
		// https://soundcloud.com/<user>/... splits to ["https:", "", host, user, ...].
		parts := strings.Split(c.Href, "/")
		if len(parts) < 4 || parts[3] == "" {
			return nil
		}
		user = parts[3]
	default:
		return nil
	}
	if user == "" {
		return nil
	}
	return &messaging.MediaMetaData{
		MediaType: messaging.MediaTypeSoundCloud,
		UserURL:   user,
	}
}
