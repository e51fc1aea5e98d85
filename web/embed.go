package web

import "embed"

// FS embeds the HTML templates (layout, pages, partials) and static assets
// served under /static/.
//
//go:embed templates static
var FS embed.FS
