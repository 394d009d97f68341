package pyramid

import "github.com/jikhanjung/ctpyramid/internal/errs"

// ErrorKind is one of the error categories a pyramid builder call can
// fail with, per spec.md §7.
type ErrorKind = errs.Kind

// Error is the structured error type every exported function returns
// on failure. Its Unwrap method makes it compatible with
// errors.Is/errors.As.
type Error = errs.Error

// Error kind constants, re-exported from internal/errs so callers
// never need to import it directly.
const (
	ErrDirectoryNotFound    = errs.KindDirectoryNotFound
	ErrDirectoryNotReadable = errs.KindDirectoryNotReadable
	ErrNoImagesFound        = errs.KindNoImagesFound
	ErrInvalidImageFormat   = errs.KindInvalidImageFormat
	ErrCorruptedImage       = errs.KindCorruptedImage

	ErrDirectoryNotWritable = errs.KindDirectoryNotWritable
	ErrDiskFull             = errs.KindDiskFull
	ErrWriteFailed          = errs.KindWriteFailed

	ErrPathEscape         = errs.KindPathEscape
	ErrForbiddenCharacter = errs.KindForbiddenCharacter
	ErrIsSymlink          = errs.KindIsSymlink

	ErrOutOfMemory       = errs.KindOutOfMemory
	ErrDependencyMissing = errs.KindDependencyMissing

	ErrCancelled  = errs.KindCancelled
	ErrUnexpected = errs.KindUnexpected
)

// IsKind reports whether err carries the given ErrorKind, unwrapping
// through any chain of wrapped errors.
func IsKind(err error, kind ErrorKind) bool {
	return errs.Is(err, kind)
}
