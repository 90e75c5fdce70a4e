package importer

import (
	"os"
	"path/filepath"
	"strings"
)

var supportedExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".m4b":  true,
	".aac":  true,
	".wav":  true,
	".flac": true,
	".aiff": true,
	".caf":  true,
}

// PathKind classifies an input path.
type PathKind int

const (
	PathFile PathKind = iota
	PathDirectory
	PathMissing
)

func (k PathKind) String() string {
	switch k {
	case PathFile:
		return "file"
	case PathDirectory:
		return "directory"
	case PathMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Classify stats a path. Read-only, no side effects.
func Classify(path string) PathKind {
	info, err := os.Stat(path)
	if err != nil {
		return PathMissing
	}
	if info.IsDir() {
		return PathDirectory
	}
	return PathFile
}

// Extension returns the lowercased extension of path, including the dot.
func Extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsSupportedFormat reports whether a file's extension is on the audio
// allow-list. Case-insensitive.
func IsSupportedFormat(path string) bool {
	return supportedExtensions[Extension(path)]
}
