package playlist

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// DefaultFilename is the media playlist name inside an HLS directory.
const DefaultFilename = "index.m3u8"

// Entry is one segment in a media playlist.
type Entry struct {
	URI      string  `json:"uri"`
	Duration float64 `json:"duration"`
	Sequence int64   `json:"sequence"`
}

// Playlist is a snapshot of a media playlist.
type Playlist struct {
	Name     string  `json:"name"`
	Entries  []Entry `json:"entries"`
	Finished bool    `json:"finished"`
	Count    int     `json:"count"`
}

// Writer accumulates segments of one stream and renders them as an HLS
// media playlist. It is safe for concurrent use.
type Writer struct {
	name     string
	mu       sync.Mutex
	entries  []Entry
	finished bool
}

// NewWriter returns an empty playlist writer.
func NewWriter(name string) *Writer {
	return &Writer{name: name}
}

// Add appends a segment. Entries must be added in sequence order.
func (w *Writer) Add(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return fmt.Errorf("playlist %s is finished", w.name)
	}
	if n := len(w.entries); n > 0 && e.Sequence <= w.entries[n-1].Sequence {
		return fmt.Errorf("segment %d added after %d", e.Sequence, w.entries[n-1].Sequence)
	}
	w.entries = append(w.entries, e)
	return nil
}

// Finish marks the stream complete; the rendered playlist gets an end tag.
func (w *Writer) Finish() {
	w.mu.Lock()
	w.finished = true
	w.mu.Unlock()
}

// Snapshot returns a copy of the current playlist.
func (w *Writer) Snapshot() Playlist {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := make([]Entry, len(w.entries))
	copy(entries, w.entries)
	return Playlist{
		Name:     w.name,
		Entries:  entries,
		Finished: w.finished,
		Count:    len(entries),
	}
}

// Render encodes the playlist in m3u8 form.
func (w *Writer) Render() []byte {
	return w.Snapshot().Render()
}

// Render encodes p in m3u8 form.
func (p Playlist) Render() []byte {
	var buf bytes.Buffer

	target := 1
	for _, e := range p.Entries {
		if d := int(math.Ceil(e.Duration)); d > target {
			target = d
		}
	}
	var first int64
	if len(p.Entries) > 0 {
		first = p.Entries[0].Sequence
	}

	buf.WriteString("#EXTM3U\n")
	buf.WriteString("#EXT-X-VERSION:3\n")
	if p.Finished {
		buf.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	} else {
		buf.WriteString("#EXT-X-PLAYLIST-TYPE:EVENT\n")
	}
	fmt.Fprintf(&buf, "#EXT-X-TARGETDURATION:%d\n", target)
	fmt.Fprintf(&buf, "#EXT-X-MEDIA-SEQUENCE:%d\n", first)

	for _, e := range p.Entries {
		fmt.Fprintf(&buf, "#EXTINF:%s,\n", strconv.FormatFloat(e.Duration, 'f', 3, 64))
		buf.WriteString(e.URI)
		buf.WriteByte('\n')
	}

	if p.Finished {
		buf.WriteString("#EXT-X-ENDLIST\n")
	}
	return buf.Bytes()
}

// WriteFile renders the playlist into dir/filename, replacing any previous
// version atomically so players never read a partial file.
func (w *Writer) WriteFile(dir, filename string) error {
	if filename == "" {
		filename = DefaultFilename
	}

	tmp, err := os.CreateTemp(dir, "."+filename+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary playlist: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(w.Render()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write playlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close playlist: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set playlist permissions: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, filename)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace playlist: %w", err)
	}
	return nil
}
