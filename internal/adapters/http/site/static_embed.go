package site

import (
	"embed"
	"io/fs"
)

//go:embed static
var staticFS embed.FS

// Bundle returns the embedded frontend rooted at its index page.
func Bundle() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// Should never happen; the directory is embedded above.
		return staticFS
	}
	return sub
}
