// Package errs defines the error taxonomy shared by every pyramid
// builder component, so that task-level, engine-level, and top-level
// callers can all test for the same kinds with errors.Is/As instead of
// matching on message text.
package errs

// Kind is one of the error categories a pyramid builder operation can
// fail with. Kinds are not Go types; they are a closed set of tags
// carried by Error, mirroring the taxonomy in spec.md §7.
type Kind int

const (
	// Input errors.
	KindDirectoryNotFound Kind = iota
	KindDirectoryNotReadable
	KindNoImagesFound
	KindInvalidImageFormat
	KindCorruptedImage

	// Output errors.
	KindDirectoryNotWritable
	KindDiskFull
	KindWriteFailed

	// Security errors.
	KindPathEscape
	KindForbiddenCharacter
	KindIsSymlink

	// Resource errors.
	KindOutOfMemory
	KindDependencyMissing

	// Flow (not an error proper, but carried through the same type so
	// callers can errors.As into it uniformly).
	KindCancelled

	// Bug: last resort, wraps an unexpected underlying error.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindDirectoryNotFound:
		return "DirectoryNotFound"
	case KindDirectoryNotReadable:
		return "DirectoryNotReadable"
	case KindNoImagesFound:
		return "NoImagesFound"
	case KindInvalidImageFormat:
		return "InvalidImageFormat"
	case KindCorruptedImage:
		return "CorruptedImage"
	case KindDirectoryNotWritable:
		return "DirectoryNotWritable"
	case KindDiskFull:
		return "DiskFull"
	case KindWriteFailed:
		return "WriteFailed"
	case KindPathEscape:
		return "PathEscape"
	case KindForbiddenCharacter:
		return "ForbiddenCharacter"
	case KindIsSymlink:
		return "IsSymlink"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindDependencyMissing:
		return "DependencyMissing"
	case KindCancelled:
		return "Cancelled"
	case KindUnexpected:
		return "Unexpected"
	default:
		return "Unknown"
	}
}

// Error is the structured error type returned at every pyramid builder
// boundary. Message is a short actionable summary; Detail carries the
// technical explanation. The UI layer (out of scope) maps Kind to a
// localized dialog and Message to its body text.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Kind.String() + ": " + e.Message + " (" + e.Detail + ")"
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that wraps an existing error as Cause, using
// its message as Detail when Detail isn't otherwise meaningful.
func Wrap(kind Kind, message string, cause error) *Error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Detail: detail, Cause: cause}
}

// Is reports whether err carries the given Kind, unwrapping through
// any chain of wrapped errors.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		break
	}
	return false
}
