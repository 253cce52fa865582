package ndjson

import "strings"

// Framer splits decoded text into newline-delimited frames. Text after the
// last newline is kept until a later Push completes it.
type Framer struct {
	partial strings.Builder
}

// Push appends text and returns every frame it completes, trimmed, with blank
// lines dropped.
func (f *Framer) Push(text string) []string {
	var lines []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			f.partial.WriteString(text)
			return lines
		}

		f.partial.WriteString(text[:i])
		if line := strings.TrimSpace(f.partial.String()); line != "" {
			lines = append(lines, line)
		}
		f.partial.Reset()
		text = text[i+1:]
	}
}

// Flush returns the unterminated trailing frame, if any, and resets the framer.
func (f *Framer) Flush() []string {
	line := strings.TrimSpace(f.partial.String())
	f.partial.Reset()
	if line == "" {
		return nil
	}
	return []string{line}
}

// Pending returns the number of bytes buffered for an unterminated frame.
func (f *Framer) Pending() int {
	return f.partial.Len()
}
