package pty

import (
	"strings"
	"unicode/utf8"
)

// Decoder is an incremental UTF-8 decoder.
//
// Output from the PTY arrives in arbitrary chunks, so a multi-byte character
// can be split across two reads. The decoder holds the trailing bytes of an
// incomplete sequence until the next chunk arrives and only substitutes the
// replacement character for sequences that can never become valid.
type Decoder struct {
	pending []byte
}

// Decode consumes a chunk and returns the decoded text. Bytes that form an
// incomplete multi-byte sequence at the end of the chunk are retained for
// the next call.
func (d *Decoder) Decode(p []byte) string {
	if len(d.pending) > 0 {
		p = append(d.pending, p...)
		d.pending = nil
	}

	var b strings.Builder
	b.Grow(len(p))

	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		if r == utf8.RuneError && size == 1 {
			if isIncompleteSequence(p) {
				// Hold the partial sequence until more bytes arrive.
				d.pending = append(d.pending, p...)
				break
			}
			b.WriteRune(utf8.RuneError)
			p = p[1:]
			continue
		}
		b.Write(p[:size])
		p = p[size:]
	}

	return b.String()
}

// Pending reports how many undecoded bytes are buffered.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// isIncompleteSequence reports whether p is a valid prefix of a multi-byte
// UTF-8 sequence that is shorter than the sequence's full length.
func isIncompleteSequence(p []byte) bool {
	if len(p) >= utf8.UTFMax {
		return false
	}

	var need int
	switch c := p[0]; {
	case c&0xE0 == 0xC0:
		need = 2
	case c&0xF0 == 0xE0:
		need = 3
	case c&0xF8 == 0xF0:
		need = 4
	default:
		return false
	}

	if len(p) >= need {
		return false
	}
	for _, c := range p[1:] {
		if c&0xC0 != 0x80 {
			return false
		}
	}
	return true
}
