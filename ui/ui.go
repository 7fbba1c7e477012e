// Package ui holds the HTML templates of the web server.
package ui

import "embed"

// Templates contains base.gohtml and one directory per page under pages/.
//
//go:embed templates
var Templates embed.FS
