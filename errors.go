package msf

import (
	"errors"
	"fmt"
)

// MsfError is the base error of the msf package.
type MsfError struct {
	err error
}

// Error implements error.Error().
func (me MsfError) Error() string {
	return fmt.Sprintf("msf: %s", me.err.Error())
}

// Unwrap implements error.Unwrap().
func (me MsfError) Unwrap() error {
	return me.err
}

// Errorf returns a new MsfError which wraps an error created from
// format string and arguments.
func (me MsfError) Errorf(format string, args ...interface{}) MsfError {
	return MsfError{fmt.Errorf(format, args...)}
}

var (
	// ErrMsf is the base generic error.
	ErrMsf = MsfError{}

	// ErrNotAnMsf is returned when a file's signature does not match
	// any known MSF variant.
	ErrNotAnMsf = MsfError{errors.New("not an MSF file")}

	// ErrUnsupportedVariant is returned for a variant this package
	// recognizes but refuses to open in the requested mode: a Portable
	// PDB, a small-MSF file opened read-write, or an MSFZ file with an
	// unsupported version. There is no write mode for MSFZ files, so
	// no MSFZ write-mode open returns it.
	ErrUnsupportedVariant = MsfError{errors.New("unsupported MSF variant")}

	// ErrMalformedHeader is returned when header fields fail
	// validation: bad page size, active FPM out of {1,2}, zero page
	// count, misaligned directory size.
	ErrMalformedHeader = MsfError{errors.New("malformed MSF header")}

	// ErrMalformedDirectory is returned when the stream directory is
	// internally inconsistent: truncated, out-of-range page numbers,
	// or a page claimed by more than one stream.
	ErrMalformedDirectory = MsfError{errors.New("malformed stream directory")}

	// ErrFpmInconsistent is returned in read-write mode when the
	// on-disk free page map disagrees with the map computed from the
	// stream directory.
	ErrFpmInconsistent = MsfError{errors.New("free page map inconsistent with stream directory")}

	// ErrStreamIndexOutOfRange is returned when a stream index is
	// negative or exceeds the container's stream count.
	ErrStreamIndexOutOfRange = MsfError{errors.New("stream index out of range")}

	// ErrInvalidStreamData is returned when stream bytes cannot be
	// decoded according to their declared shape (e.g. an MSFZ
	// fragment list with an illegal terminator).
	ErrInvalidStreamData = MsfError{errors.New("invalid stream data")}

	// ErrInputTooLarge is returned when an offset, length, or their
	// sum would overflow the 32-bit space the on-disk format uses.
	ErrInputTooLarge = MsfError{errors.New("input too large for MSF stream")}

	// ErrImmutableContainer is returned by NewStream, Writer, and
	// Commit on a Container opened read-only. Msfz has no mutating
	// methods, so it never returns this error.
	ErrImmutableContainer = MsfError{errors.New("container is immutable")}
)
