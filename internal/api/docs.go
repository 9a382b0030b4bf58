package api

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
)

const elementsVersion = "9.0.0"

// referencePage is the data behind the /docs page.
type referencePage struct {
	Title           string
	SpecURL         string
	ElementsVersion string
	// StreamDocs adds the link to /docs/stream when the tip stream is mounted.
	StreamDocs bool
}

var referenceTmpl = template.Must(template.New("reference").Parse(`<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <link href="https://unpkg.com/@stoplight/elements@{{.ElementsVersion}}/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@{{.ElementsVersion}}/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { height: 100vh; margin: 0; position: relative; background: #0d1117; }
    .stream-link {
      position: fixed; top: 12px; right: 16px; z-index: 9999;
      background: #161b22; border: 1px solid #30363d; border-radius: 6px;
      color: #58a6ff; font: 500 12px -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
      padding: 5px 12px; text-decoration: none;
    }
  </style>
</head>
<body>
{{- if .StreamDocs}}
  <a class="stream-link" href="/docs/stream">Tip Stream Docs</a>
{{- end}}
  <elements-api
    apiDescriptionUrl="{{.SpecURL}}"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`))

func renderReference(p referencePage) []byte {
	if p.ElementsVersion == "" {
		p.ElementsVersion = elementsVersion
	}
	var buf bytes.Buffer
	if err := referenceTmpl.Execute(&buf, p); err != nil {
		// The template is static; a failure here is a programming error.
		panic(err)
	}
	return buf.Bytes()
}

// staticHTML serves a page rendered once at startup.
func staticHTML(name string, page []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(page); err != nil {
			slog.Debug("docs response write failed", "page", name, "error", err)
		}
	}
}
