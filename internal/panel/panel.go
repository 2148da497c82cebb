package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// indexPage is served for the root and for any path with no matching file.
const indexPage = "/"

// Handler returns an http.Handler that serves the mixer and admin pages.
//
// When dir is non-empty and the directory exists, assets are served from the
// filesystem. Otherwise the embedded copy is used.
//
// Requests for files that do not exist get index.html, so stale bookmarks
// still land on the mixer.
// Panics if the embedded web assets cannot be loaded (build error).
func Handler(dir string) http.Handler {
	assets := assetFS(dir)
	files := http.FileServer(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		if name := path.Clean(r.URL.Path); name != "/" && name != "." && !exists(assets, name) {
			r.URL.Path = indexPage
		}
		files.ServeHTTP(w, r)
	})
}

// assetFS picks the on-disk directory when usable, else the embedded pages.
func assetFS(dir string) http.FileSystem {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return http.Dir(dir)
		}
	}
	web, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("panel: failed to load embedded web assets: %v", err))
	}
	return http.FS(web)
}

func exists(assets http.FileSystem, name string) bool {
	f, err := assets.Open(name)
	if err != nil {
		return false
	}
	f.Close() //nolint:errcheck // Read-only probe
	return true
}
