package errcodes

import "fmt"

type Kind string

const (
	KindFilesystem    Kind = "filesystem"
	KindArchive       Kind = "archive"
	KindDecode        Kind = "decode"
	KindSubprocess    Kind = "subprocess"
	KindMetadataParse Kind = "metadata_parse"
	KindPersistence   Kind = "persistence"
	KindNotFound      Kind = "not_found"
)

// Kind-only values for matching with errors.Is, e.g.
// errors.Is(err, errcodes.ErrArchive).
var (
	ErrFilesystem    = &Error{Kind: KindFilesystem}
	ErrArchive       = &Error{Kind: KindArchive}
	ErrDecode        = &Error{Kind: KindDecode}
	ErrSubprocess    = &Error{Kind: KindSubprocess}
	ErrMetadataParse = &Error{Kind: KindMetadataParse}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (err *Error) Error() string {
	if err.Cause == nil {
		return err.Message
	}
	return err.Message + ": " + err.Cause.Error()
}

func (err *Error) Unwrap() error {
	return err.Cause
}

// Is matches another *Error of the same kind. A target without a message
// matches every error of that kind.
func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	if te.Kind != err.Kind {
		return false
	}
	return te.Message == "" || te.Message == err.Message
}

// NotFound returns an error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		Kind:    KindNotFound,
		Message: resource + " not found.",
	}
}

func Filesystem(cause error, format string, args ...interface{}) error {
	return newError(KindFilesystem, cause, format, args...)
}

func Archive(cause error, format string, args ...interface{}) error {
	return newError(KindArchive, cause, format, args...)
}

func Decode(cause error, format string, args ...interface{}) error {
	return newError(KindDecode, cause, format, args...)
}

func Subprocess(cause error, format string, args ...interface{}) error {
	return newError(KindSubprocess, cause, format, args...)
}

// MetadataParse is logged by the sidecar loader and never returned past it.
func MetadataParse(cause error, format string, args ...interface{}) error {
	return newError(KindMetadataParse, cause, format, args...)
}

func Persistence(cause error, format string, args ...interface{}) error {
	return newError(KindPersistence, cause, format, args...)
}

func newError(kind Kind, cause error, format string, args ...interface{}) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}
