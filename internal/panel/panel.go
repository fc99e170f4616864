package panel

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"strings"
)

//go:embed web/*
var content embed.FS

// Assets returns the panel file tree: dir when it is an existing
// directory, the embedded copy otherwise.
func Assets(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	web, err := fs.Sub(content, "web")
	if err != nil {
		// web/ is embedded at build time.
		panic("panel: embedded assets missing: " + err.Error())
	}
	return web
}

// Handler serves the panel page and its script and stylesheet. Paths that
// do not name a file get 404; directory listings are never produced.
func Handler(dir string) http.Handler {
	assets := Assets(dir)
	files := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The panel is edited in place on the Pi; never let a browser keep
		// a stale script.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || name == "index.html" {
			serveIndex(w, r, assets)
			return
		}
		if info, err := fs.Stat(assets, name); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// serveIndex writes index.html directly; FileServer would redirect
// /index.html to /.
func serveIndex(w http.ResponseWriter, r *http.Request, assets fs.FS) {
	page, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		http.Error(w, "panel unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	w.Write(page) //nolint:errcheck,gosec // client went away
}
