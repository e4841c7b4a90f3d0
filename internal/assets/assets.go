package assets

import "embed"

// WebFS holds the monitor page served at the site root.
//
//go:embed web
var WebFS embed.FS
