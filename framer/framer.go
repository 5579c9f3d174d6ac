// Package framer re-assembles discrete LSP base-protocol messages
// (Content-Length-framed header/body pairs) from a byte stream that may
// only be read in arbitrary, partial chunks.
//
// https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification/#baseProtocol
package framer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gopherlsp/lspcore/internal/assert"
)

// Sentinel errors for the abstract error kinds a [Framer] can surface. They
// are deliberately plain errors, not a custom error-code type, matching the
// teacher's unadorned error style.
var (
	// ErrUnavailable is returned by Pull on a clean EOF with no partial
	// message pending. It is a "good" terminal status, not a failure.
	ErrUnavailable = errors.New("framer: stream exhausted")
	// ErrDataLoss is returned when the stream ended (or a read failed)
	// while a message was only partially buffered.
	ErrDataLoss = errors.New("framer: message truncated")
	// ErrInvalidArgument is returned when a header region has no
	// well-formed Content-Length.
	ErrInvalidArgument = errors.New("framer: invalid header")
	// ErrFailedPrecondition is returned by Pull when called before
	// SetProcessor.
	ErrFailedPrecondition = errors.New("framer: no processor installed")
)

const (
	contentLengthHeader = "Content-Length: "
	crlfcrlf            = "\r\n\r\n"
	headerPreviewCap     = 256
)

// ReadFunc mirrors a POSIX read: a positive return is the number of bytes
// written into buf, 0 means a clean EOF, and a non-nil err (with n<=0)
// means a read error.
type ReadFunc func(buf []byte) (n int, err error)

// Processor consumes one complete message. header includes the trailing
// CRLFCRLF separator; body is exactly Content-Length bytes. Both slices
// alias the Framer's internal buffer and are valid only for the duration
// of the call.
type Processor func(header, body []byte)

// Framer re-assembles messages from a fixed-capacity buffer, performing
// exactly one read per [Framer.Pull] call so that it can be driven from a
// reactor's readability callback without risking starvation.
type Framer struct {
	buf []byte // fixed capacity; buf[:n] holds unparsed bytes
	n   int

	processor Processor

	// CaseInsensitiveHeaders, when true, matches "Content-Length" without
	// regard to case instead of the spec-default case-sensitive literal
	// match (resolves the header case-sensitivity Open Question as an
	// explicit compatibility knob).
	CaseInsensitiveHeaders bool

	totalBytesRead  int64
	largestBodySeen int64
}

// New returns a Framer with a fixed buffer of the given capacity, which
// bounds the largest admissible message (header + body).
func New(capacity int) *Framer {
	assert.That(capacity > 0, "framer: capacity must be positive, got %d", capacity)
	return &Framer{buf: make([]byte, capacity)}
}

// SetProcessor installs the callback invoked once per complete message.
func (f *Framer) SetProcessor(p Processor) {
	f.processor = p
}

// TotalBytesRead returns the cumulative count of bytes read so far.
func (f *Framer) TotalBytesRead() int64 { return f.totalBytesRead }

// LargestBodySeen returns the size in bytes of the largest message body
// seen so far.
func (f *Framer) LargestBodySeen() int64 { return f.largestBodySeen }

// Pull performs exactly one call to read, then drains as many complete
// messages as the buffer now contains, invoking the installed processor
// for each. It returns ErrUnavailable on a clean EOF with nothing pending
// (a good terminal status), ErrDataLoss if the stream ended mid-message,
// ErrInvalidArgument on a malformed header, or ErrFailedPrecondition if no
// processor has been installed.
func (f *Framer) Pull(read ReadFunc) error {
	if f.processor == nil {
		return ErrFailedPrecondition
	}
	assert.That(f.n <= len(f.buf), "framer: unparsed length %d exceeds capacity %d", f.n, len(f.buf))

	n, _ := read(f.buf[f.n:])
	if n <= 0 {
		if f.n > 0 {
			return ErrDataLoss
		}
		return ErrUnavailable
	}
	f.n += n
	f.totalBytesRead += int64(n)

	for {
		headerEnd, bodyLen, ok, err := f.parseHeader()
		if err != nil {
			return err
		}
		if !ok {
			break // need more bytes
		}
		if f.n < headerEnd+bodyLen {
			break // need more bytes
		}

		header := f.buf[:headerEnd]
		body := f.buf[headerEnd : headerEnd+bodyLen]
		f.processor(header, body)

		if int64(bodyLen) > f.largestBodySeen {
			f.largestBodySeen = int64(bodyLen)
		}

		consumed := headerEnd + bodyLen
		remaining := copy(f.buf, f.buf[consumed:f.n])
		f.n = remaining
	}

	return nil
}

// parseHeader looks for a complete header (terminated by CRLFCRLF) at the
// front of the buffer and, if found, parses its Content-Length. ok is
// false when more bytes are needed before a header can be recognized.
func (f *Framer) parseHeader() (headerEnd, bodyLen int, ok bool, err error) {
	idx := bytes.Index(f.buf[:f.n], []byte(crlfcrlf))
	if idx < 0 {
		return 0, 0, false, nil
	}
	headerEnd = idx + len(crlfcrlf)
	headerBytes := f.buf[:idx]

	length, found := findContentLength(headerBytes, f.CaseInsensitiveHeaders)
	if !found {
		preview := headerBytes
		if len(preview) > headerPreviewCap {
			preview = preview[:headerPreviewCap]
		}
		return 0, 0, false, fmt.Errorf("%w: no Content-Length header found in %q", ErrInvalidArgument, preview)
	}
	if length < 0 {
		preview := headerBytes
		if len(preview) > headerPreviewCap {
			preview = preview[:headerPreviewCap]
		}
		return 0, 0, false, fmt.Errorf("%w: invalid Content-Length in header %q", ErrInvalidArgument, preview)
	}
	return headerEnd, length, true, nil
}

// findContentLength finds the first Content-Length header anywhere in
// header and parses its value. Other headers are ignored.
func findContentLength(header []byte, caseInsensitive bool) (length int, found bool) {
	literal := []byte(contentLengthHeader)
	haystack := header
	needle := literal
	idx := -1
	if caseInsensitive {
		idx = indexFold(haystack, needle)
	} else {
		idx = bytes.Index(haystack, needle)
	}
	if idx < 0 {
		return 0, false
	}

	rest := header[idx+len(literal):]
	end := bytes.IndexAny(rest, "\r\n")
	if end >= 0 {
		rest = rest[:end]
	}

	length = 0
	sawDigit := false
	for _, b := range rest {
		if b < '0' || b > '9' {
			break
		}
		sawDigit = true
		length = length*10 + int(b-'0')
	}
	if !sawDigit {
		return 0, false
	}
	return length, true
}

func indexFold(haystack, needle []byte) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if bytes.EqualFold(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}
