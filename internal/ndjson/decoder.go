// Package ndjson turns a chunked byte stream into newline-delimited JSON
// fragments.
package ndjson

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder is a stateful UTF-8 decoder. A multi-byte sequence split across two
// chunks is held back until the next call completes it; ill-formed bytes become
// U+FFFD.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

// NewDecoder returns a Decoder ready for the first chunk.
func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

// Decode returns the text decoded from chunk, prefixed by whatever was held
// back from the previous chunk.
func (d *Decoder) Decode(chunk []byte) string {
	return d.decode(chunk, false)
}

// Flush decodes any held-back bytes as the end of the stream and resets the
// decoder.
func (d *Decoder) Flush() string {
	out := d.decode(nil, true)
	d.t.Reset()
	return out
}

func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}
	if len(src) == 0 {
		return ""
	}

	// Every input byte expands to at most one replacement rune.
	dst := make([]byte, len(src)*utf8.UTFMax)

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out.Write(dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return out.String()
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
			return out.String()
		case errors.Is(err, transform.ErrShortDst) && nSrc > 0:
			continue
		default:
			// The UTF-8 decoder only reports short buffers; anything else
			// means the remainder cannot be decoded at all.
			if len(src) > 0 {
				out.WriteString(strings.Repeat(string(utf8.RuneError), len(src)))
			}
			return out.String()
		}
	}
}
