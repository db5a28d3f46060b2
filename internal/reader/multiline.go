package reader

import "regexp"

// textLine is one line inside a read buffer: [Start, End) is its content
// without the trailing newline; HasNewline reports whether a terminating
// '\n' followed it in the buffer (false only for the final line when the
// buffer does not end in '\n').
type textLine struct {
	Start, End int
	HasNewline bool
}

// splitLines breaks buf into its constituent lines. A buffer with no
// trailing newline still yields one line for its trailing partial content.
func splitLines(buf []byte) []textLine {
	var lines []textLine
	start := 0
	for i, b := range buf {
		if b == '\n' {
			lines = append(lines, textLine{Start: start, End: i, HasNewline: true})
			start = i + 1
		}
	}
	if start < len(buf) {
		lines = append(lines, textLine{Start: start, End: len(buf), HasNewline: false})
	}
	return lines
}

// LastCompleteLine scans back to the last '\n' in buf, returning the byte
// length of the prefix that ends with a complete line. This is the
// single-line (non-multiline, non-JSON) framing rule of spec.md §4.6.4:
// "Trailing partial line is dropped from this buffer unless EOF is
// certain." atEOF lets the caller force the whole buffer through once no
// more data is coming (so a final unterminated line is still delivered).
func LastCompleteLine(buf []byte, atEOF bool) (prefixLen int) {
	if atEOF {
		return len(buf)
	}
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

// countNewlines counts '\n' bytes in buf, used to translate a framing
// decision (a byte offset) into a line count that survives re-encoding.
func countNewlines(buf []byte) int {
	n := 0
	for _, b := range buf {
		if b == '\n' {
			n++
		}
	}
	return n
}

// sourceBytesForLines returns the byte offset in buf just after its n-th
// '\n', or len(buf) if buf has fewer than n newlines.
func sourceBytesForLines(buf []byte, n int) int {
	count := 0
	for i, b := range buf {
		if b == '\n' {
			count++
			if count == n {
				return i + 1
			}
		}
	}
	return len(buf)
}

// LastMatchedLine implements spec.md §4.6.4's multiline/JSON framing rule:
// walk backward over the buffer's lines (excluding the very first, which
// merely continues whatever record was already open before this read) and
// find the last one whose content matches beginRe — the start of a new
// record, which proves every record before it is complete. prefixLen is
// the byte offset that line starts at (the safe amount to emit);
// rolledBackLines counts how many trailing lines (including the matched
// one) are being withheld for a future read.
//
// If no line after the first matches — including when the buffer holds
// only one line — the buffer is assumed to be one still-growing record:
// the fallback is LastCompleteLine's ordinary trailing-partial-line rule,
// which emits everything already newline-terminated (example 5 of §8:
// a lone, fully-terminated "ERR def\n" read is emitted whole, not withheld,
// because nothing after it contradicts it being complete).
func LastMatchedLine(buf []byte, beginRe *regexp.Regexp) (prefixLen int, rolledBackLines int) {
	lines := splitLines(buf)
	if len(lines) > 1 {
		for i := len(lines) - 1; i >= 1; i-- {
			line := lines[i]
			if beginRe.Match(buf[line.Start:line.End]) {
				return line.Start, len(lines) - i
			}
		}
	}
	if n := len(lines); n > 0 && !lines[n-1].HasNewline {
		return lines[n-1].Start, 1
	}
	return len(buf), 0
}
