package moduleplayer

import "io"

// whence values for MemoryFile.Seek: untyped aliases of io's whence
// constants under FILE*-style names, so the loader code reads like the
// component A spec: a random-access cursor over an immutable byte buffer.
const (
	SeekSet = io.SeekStart
	SeekCur = io.SeekCurrent
	SeekEnd = io.SeekEnd
)

// MemoryFile is a seekable cursor over an in-memory byte buffer. All of the
// loaders (modfile.go, xmfile.go, s3mfile.go, itfile.go) read through one of
// these instead of an *os.File, since component A's contract is "input is a
// raw byte buffer plus length" (spec.md §1) with no file I/O in the core.
type MemoryFile struct {
	buf []byte
	pos int
	eof bool
}

// OpenMemoryFile wraps src as a MemoryFile. Fails if src is empty, per
// spec.md §4.1.
func OpenMemoryFile(src []byte) (*MemoryFile, error) {
	if len(src) == 0 {
		return nil, ErrTruncated
	}
	return &MemoryFile{buf: src}, nil
}

// Len returns the total buffer length.
func (m *MemoryFile) Len() int { return len(m.buf) }

// Tell returns the current cursor position.
func (m *MemoryFile) Tell() int { return m.pos }

// EOF reports whether the cursor has been clamped against the end of the
// buffer by a prior Read or Seek.
func (m *MemoryFile) EOF() bool { return m.eof }

// Seek repositions the cursor, clamped to [0, len(buf)]. EOF is cleared
// unless the new position lands exactly at the end.
func (m *MemoryFile) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = m.pos
	case SeekEnd:
		base = len(m.buf)
	default:
		return 0, ErrInvalid
	}

	np := base + int(offset)
	if np < 0 {
		np = 0
	}
	if np > len(m.buf) {
		np = len(m.buf)
	}
	m.pos = np
	m.eof = m.pos >= len(m.buf)

	return int64(m.pos), nil
}

// Read copies min(len(dst), remaining) bytes into dst, advancing the
// cursor, and returns the number of bytes copied. Sets EOF when the
// remaining count hits zero.
func (m *MemoryFile) Read(dst []byte) (int, error) {
	remaining := len(m.buf) - m.pos
	if remaining <= 0 {
		m.eof = true
		return 0, io.EOF
	}

	n := len(dst)
	if n > remaining {
		n = remaining
	}
	copy(dst, m.buf[m.pos:m.pos+n])
	m.pos += n
	if m.pos >= len(m.buf) {
		m.eof = true
	}

	return n, nil
}

// ReadByte reads a single byte, satisfying io.ByteReader.
func (m *MemoryFile) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := m.Read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadExact reads exactly n bytes, failing with ErrTruncated on a short
// read rather than returning a partial buffer.
func (m *MemoryFile) ReadExact(n int) ([]byte, error) {
	out := make([]byte, n)
	got, _ := m.Read(out)
	if got != n {
		return nil, ErrTruncated
	}
	return out, nil
}

// Peek returns up to n bytes starting at the current cursor without
// advancing it. Used by the format dispatcher to sniff magic bytes.
func (m *MemoryFile) Peek(n int) []byte {
	end := m.pos + n
	if end > len(m.buf) {
		end = len(m.buf)
	}
	if end <= m.pos {
		return nil
	}
	return m.buf[m.pos:end]
}

// Remaining returns a slice of the unread tail of the buffer without
// advancing the cursor.
func (m *MemoryFile) Remaining() []byte {
	return m.buf[m.pos:]
}
