// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"fmt"
	"html"
	"net/http"
	"strings"
)

const landingHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
  body { font-family: system-ui, -apple-system, sans-serif; max-width: 760px;
         margin: 0 auto; padding: 40px 20px; color: #2c2c2c; background: #fafafa; }
  h1 { margin-bottom: 4px; }
  .meta { color: #777; font-size: 0.9em; margin-top: 0; }
  .meta a { color: #2456a0; font-weight: 600; text-decoration: none; }
  code { font-family: ui-monospace, monospace; background: #efefef;
          padding: 2px 6px; border-radius: 3px; font-size: 0.9em; }
  .card { border: 1px solid #e4e4e4; border-radius: 8px; padding: 16px;
           margin-bottom: 14px; background: #fff; }
  .card-header { display: flex; align-items: center; gap: 10px; margin-bottom: 10px; }
  .proc-name { font-family: ui-monospace, monospace; font-weight: 600; font-size: 1.05em; }
  .badge { display: inline-block; padding: 2px 8px; border-radius: 4px;
            font-size: 0.75em; font-weight: 600; text-transform: uppercase; }
  .badge-query { background: #e4f0e0; color: #2d5016; }
  .badge-mutation { background: #f0e4e0; color: #6b2d16; }
  table { width: 100%%; border-collapse: collapse; font-size: 0.9em; }
  th { text-align: left; padding: 6px 10px; background: #f3f3f3; border-bottom: 2px solid #e4e4e4; }
  td { padding: 6px 10px; border-bottom: 1px solid #efefef; }
  .no-params { color: #777; font-style: italic; font-size: 0.9em; }
</style>
</head>
<body>
<h1>%s</h1>
<p class="meta">Procedure catalog: <a href="%s"><code>%s</code></a>%s</p>
%s
</body>
</html>`

// buildLandingHTML renders the service landing page: one card per
// registered procedure with its kind, parameters, and defaults.
func buildLandingHTML(registry *Registry, prefix, serverID string) []byte {
	title := "stitch service"
	var server string
	if serverID != "" {
		title = serverID
		server = fmt.Sprintf(` &middot; server <code>%s</code>`, html.EscapeString(serverID))
	}
	schemaPath := prefix + SchemaEndpoint

	var cards strings.Builder
	for _, name := range registry.Procedures() {
		info := registry.procs[name]
		buildProcedureCard(&cards, info)
	}

	return []byte(fmt.Sprintf(landingHTMLTemplate,
		html.EscapeString(title),
		html.EscapeString(title),
		html.EscapeString(schemaPath),
		html.EscapeString(schemaPath),
		server,
		cards.String(),
	))
}

func buildProcedureCard(w *strings.Builder, info *procInfo) {
	badgeClass := "badge-query"
	if info.Kind == KindMutation {
		badgeClass = "badge-mutation"
	}

	w.WriteString(`<div class="card">`)
	w.WriteString(`<div class="card-header">`)
	fmt.Fprintf(w, `<span class="proc-name">%s</span>`, html.EscapeString(info.Name))
	fmt.Fprintf(w, `<span class="badge %s">%s</span>`, badgeClass, html.EscapeString(string(info.Kind)))
	w.WriteString(`</div>`)

	if len(info.Params) > 0 {
		w.WriteString(`<table><tr><th>Parameter</th><th>Type</th><th>Default</th></tr>`)
		for _, p := range info.Params {
			field := info.Schema.Input.Properties[p.Name]
			defaultStr := "&mdash;"
			if p.Default != nil {
				defaultStr = html.EscapeString(*p.Default)
			}
			fmt.Fprintf(w, `<tr><td><code>%s</code></td><td><code>%s</code></td><td>%s</td></tr>`,
				html.EscapeString(p.Name),
				html.EscapeString(field.Type),
				defaultStr,
			)
		}
		w.WriteString(`</table>`)
	} else {
		w.WriteString(`<p class="no-params">No parameters</p>`)
	}

	w.WriteString(`</div>`)
	w.WriteString("\n")
}

// handleIndex serves the landing page at the route prefix root.
func (h *HttpServer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buildLandingHTML(h.registry, h.prefix, h.serverID))
}
