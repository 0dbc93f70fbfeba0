// Package ui serves the built-in control page.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// Handler serves the control page and its assets. Unknown paths fall back to
// the page itself.
func Handler() http.Handler {
	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embedded tree is fixed at build time
		panic(err)
	}
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, statErr := fs.Stat(fsys, trimSlash(r.URL.Path)); statErr != nil {
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	})
}

func trimSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	if p == "" {
		return "."
	}
	return p
}
