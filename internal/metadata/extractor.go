package metadata

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog/log"
	"github.com/tcolgate/mp3"

	"github.com/fermata-audio/fermata/internal/scope"
)

// Info is everything Extract could read from an audio container. Every
// field is optional: missing tags stay empty, unreadable duration and size
// stay zero. A file with no usable tags is still a valid import.
type Info struct {
	Title      string
	Artist     string
	Album      string
	Genre      string
	Duration   float64
	Size       int64
	Artwork    []byte
	ArtworkExt string
}

type Extractor struct {
	scopes *scope.Manager
}

func NewExtractor(scopes *scope.Manager) *Extractor {
	return &Extractor{scopes: scopes}
}

// Extract reads container tags, embedded artwork, duration, and byte size.
// Tag-read failures are tolerated, not propagated: the caller falls back to
// the filename for display.
func (e *Extractor) Extract(path string) Info {
	var info Info

	release := e.scopes.Acquire(path)
	defer release()

	if fi, err := os.Stat(path); err == nil {
		info.Size = fi.Size()
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to open file for metadata")
		return info
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err == nil {
		info.Title = m.Title()
		info.Artist = m.Artist()
		info.Album = m.Album()
		info.Genre = m.Genre()
		if p := m.Picture(); p != nil {
			info.Artwork = p.Data
			info.ArtworkExt = p.Ext
		}
	} else {
		log.Debug().Err(err).Str("path", path).Msg("No readable tags")
	}

	info.Duration = duration(path, f)
	return info
}

func duration(path string, f *os.File) float64 {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3Duration(f)
	case ".wav":
		return wavDuration(f)
	default:
		return 0
	}
}

// mp3Duration sums frame durations across the whole stream. MP3 carries no
// duration header, so this is the only reliable way short of guessing from
// the bitrate.
func mp3Duration(r io.Reader) float64 {
	d := mp3.NewDecoder(r)
	var frame mp3.Frame
	var skipped int

	total := 0.0
	for {
		if err := d.Decode(&frame, &skipped); err != nil {
			break
		}
		total += frame.Duration().Seconds()
	}
	return total
}

func wavDuration(f *os.File) float64 {
	dec := wav.NewDecoder(f)
	d, err := dec.Duration()
	if err != nil {
		return 0
	}
	return d.Seconds()
}
