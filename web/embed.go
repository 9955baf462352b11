// Package web embeds the browser chat client (dist/) used to talk to the bot
// without a wallet app.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

// SPAHandler serves the embedded chat client. Paths without an extension
// (pairing links such as /pair?pair=<payload>) get index.html; missing
// assets are a plain 404.
func SPAHandler() http.Handler {
	assets, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to open embedded dist: " + err.Error())
	}
	files := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" || name == "." {
			name = indexFile
		}

		if _, err := fs.Stat(assets, name); err != nil {
			if path.Ext(name) != "" {
				http.NotFound(w, r)
				return
			}
			name = indexFile
		}

		if name == indexFile {
			// The page carries no build hash; always revalidate.
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeFileFS(w, r, assets, indexFile)
			return
		}
		files.ServeHTTP(w, r)
	})
}
