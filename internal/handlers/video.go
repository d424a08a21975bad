package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
)

// ServeVideo serves a job's playlist and segments from its directory under
// the HLS root. Only plain names with a known extension are served.
func (h *Handlers) ServeVideo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	job, name := vars["job"], vars["file"]

	contentType, ok := videoContentType(name)
	if !ok || !isPlainName(name) || !isPlainName(job) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	fullPath := filepath.Join(h.videoDir, job, name)
	if !isSubPath(h.videoDir, fullPath) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	f, err := os.Open(fullPath)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if contentType == playlistContentType {
		// Live playlists change with every segment
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func videoContentType(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return playlistContentType, true
	case ".ts":
		return segmentContentType, true
	default:
		return "", false
	}
}

// isPlainName rejects separators, dot files and parent references.
func isPlainName(name string) bool {
	return name != "" &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.HasPrefix(name, ".") &&
		filepath.Base(name) == name
}

func isSubPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}
