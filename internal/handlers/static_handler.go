package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// StaticHandler serves the built frontend. Unknown paths fall back to
// index.html so client-side routes resolve.
type StaticHandler struct {
	dir   string
	files http.Handler
}

// NewStaticHandler creates a handler for the files under dir
func NewStaticHandler(dir string) *StaticHandler {
	return &StaticHandler{
		dir:   dir,
		files: http.FileServer(http.Dir(dir)),
	}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	if info, err := os.Stat(filepath.Join(h.dir, filepath.FromSlash(name))); err == nil && !info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}

	index := filepath.Join(h.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}
