package importer

import "fmt"

// ErrorKind classifies a per-file import failure.
type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindInvalidFile       ErrorKind = "invalid_file"
	KindFolderProcessing  ErrorKind = "folder_processing"
	KindDuplicateFile     ErrorKind = "duplicate_file"
)

// Error is a classified per-file import failure. It never aborts a batch;
// the coordinator turns it into that file's ImportResult and moves on.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnsupportedFormat:
		return fmt.Sprintf("unsupported format %q", e.Detail)
	case KindInvalidFile:
		return "invalid file: " + e.Detail
	case KindFolderProcessing:
		return "folder processing failed: " + e.Detail
	case KindDuplicateFile:
		return fmt.Sprintf("duplicate of %q", e.Detail)
	default:
		return e.Detail
	}
}

func errUnsupportedFormat(ext string) *Error {
	return &Error{Kind: KindUnsupportedFormat, Detail: ext}
}

func errInvalidFile(reason string) *Error {
	return &Error{Kind: KindInvalidFile, Detail: reason}
}

func errFolderProcessing(reason string) *Error {
	return &Error{Kind: KindFolderProcessing, Detail: reason}
}

// classifyError maps any failure to the (kind, reason) pair recorded on an
// ImportResult. Unclassified I/O errors count as invalid files.
func classifyError(err error) (ErrorKind, string) {
	if ie, ok := err.(*Error); ok {
		return ie.Kind, ie.Detail
	}
	return KindInvalidFile, err.Error()
}
