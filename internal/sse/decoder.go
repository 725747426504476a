// Package sse implements the line-oriented Server-Sent Events subset the
// proxy needs: a decoder that rejoins upstream data: lines across
// arbitrary transport chunk boundaries, and an encoder that re-frames the
// internal stream bus as downstream SSE bytes.
package sse

import "strings"

// LineDecoder incrementally extracts `data:` field values from a byte
// stream that may split lines anywhere, including mid-line. Only the
// data: field is inspected; other fields (event:, id:, retry:, comments)
// and blank lines are ignored, matching the subset of the SSE format the
// proxy forwards.
type LineDecoder struct {
	partial string
}

// Feed appends chunk to the internal buffer, splits it into complete
// lines (LF-terminated, CR ignored), and returns the value of every
// data: line found, with one leading space after the colon stripped. Any trailing partial line is retained for the
// next call.
func (d *LineDecoder) Feed(chunk []byte) []string {
	d.partial += string(chunk)

	var values []string
	for {
		idx := strings.IndexByte(d.partial, '\n')
		if idx < 0 {
			break
		}
		line := d.partial[:idx]
		d.partial = d.partial[idx+1:]
		line = strings.TrimSuffix(line, "\r")

		if v, ok := parseDataField(line); ok {
			values = append(values, v)
		}
	}
	return values
}

// parseDataField returns the value of a "data:" field line, with at most
// one leading space after the colon stripped, per the SSE field syntax.
func parseDataField(line string) (string, bool) {
	const prefix = "data:"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	v := line[len(prefix):]
	v = strings.TrimPrefix(v, " ")
	return v, true
}
