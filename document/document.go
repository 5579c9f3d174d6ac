// Package document maintains the open text buffers an LSP server tracks on
// behalf of a client: an incremental line store plus the collection that
// owns it across didOpen/didChange/didClose/didSave notifications.
package document

import (
	"strings"

	"github.com/gopherlsp/lspcore/internal/assert"
)

// Change is a single incremental edit. A nil Range means "replace the
// entire document with Text", matching the LSP convention for a
// full-content didChange event.
type Change struct {
	Range *Range
	Text  string
}

// Document is one open text buffer, stored as a slice of uniquely-owned
// line strings rather than shared subranges of one big buffer. Each line
// keeps its own trailing "\n" (or none, for a final unterminated line), so
// concatenating Lines reproduces the exact original bytes.
type Document struct {
	lines [][]byte
	length int

	editCount         int64
	lastGlobalVersion int64
}

// New builds a Document from its full initial text.
func New(initialText string) *Document {
	lines := linesFrom(initialText)
	return &Document{lines: lines, length: totalLen(lines)}
}

func linesFrom(text string) [][]byte {
	if len(text) == 0 {
		return nil
	}
	parts := strings.Split(text, "\n")
	lines := make([][]byte, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, []byte(p+"\n"))
	}
	if strings.HasSuffix(text, "\n") {
		lines = lines[:len(lines)-1]
	} else {
		last := lines[len(lines)-1]
		lines[len(lines)-1] = last[:len(last)-1]
	}
	return lines
}

func totalLen(lines [][]byte) int {
	n := 0
	for _, l := range lines {
		n += len(l)
	}
	return n
}

// LineCount returns the number of lines currently stored.
func (d *Document) LineCount() int { return len(d.lines) }

// DocumentLength returns the total byte length of the document.
func (d *Document) DocumentLength() int { return d.length }

// EditCount returns the number of accepted edits applied so far.
func (d *Document) EditCount() int64 { return d.editCount }

// LastGlobalVersion returns the collection-assigned version stamped on this
// document's most recent accepted edit or open.
func (d *Document) LastGlobalVersion() int64 { return d.lastGlobalVersion }

func (d *Document) stamp(version int64) {
	d.lastGlobalVersion = version
}

// RequestContent hands cb a single byte slice holding the full document
// content. The slice is only valid for the duration of the call.
func (d *Document) RequestContent(cb func([]byte)) {
	buf := make([]byte, 0, d.length)
	for _, l := range d.lines {
		buf = append(buf, l...)
	}
	cb(buf)
}

// RequestLine hands cb the content of line n, or nil if n is out of range.
func (d *Document) RequestLine(n int, cb func([]byte)) {
	if n < 0 || n >= len(d.lines) {
		cb(nil)
		return
	}
	cb(d.lines[n])
}

// ApplyChange applies one incremental edit, returning false if the edit's
// range could not be satisfied against the current document (an "edit
// rejected" outcome, not an error: the document is left unchanged).
func (d *Document) ApplyChange(c Change) bool {
	if c.Range == nil {
		d.lines = linesFrom(c.Text)
		d.length = totalLen(d.lines)
		d.editCount++
		return true
	}

	start, end := c.Range.Start, c.Range.End
	if end.Line < start.Line {
		return false
	}

	extended := false
	if end.Line == len(d.lines) {
		d.lines = append(d.lines, []byte{})
		extended = true
	}

	var ok bool
	switch {
	case start.Line < 0 || start.Line >= len(d.lines) || end.Line >= len(d.lines):
		ok = false
	case start.Line == end.Line && !strings.Contains(c.Text, "\n"):
		ok = d.applySingleLine(start, end, c.Text)
	default:
		ok = d.applyMultiLine(start, end, c.Text)
	}
	if !ok && extended {
		d.lines = d.lines[:len(d.lines)-1]
	}
	return ok
}

// content returns raw without any trailing "\n" and whether it had one.
func content(raw []byte) ([]byte, bool) {
	if len(raw) > 0 && raw[len(raw)-1] == '\n' {
		return raw[:len(raw)-1], true
	}
	return raw, false
}

func (d *Document) applySingleLine(start, end Position, text string) bool {
	lineIdx := start.Line
	raw := d.lines[lineIdx]
	line, hadNL := content(raw)

	lineLenUnits := lineLen(line, start.Unit)
	s := start.Character
	e := end.Character
	if e > lineLenUnits {
		e = lineLenUnits
	}
	if s > lineLenUnits || e < s {
		return false
	}

	sByte := byteOffset(line, s, start.Unit)
	eByte := byteOffset(line, e, start.Unit)

	newContent := make([]byte, 0, len(line[:sByte])+len(text)+len(line[eByte:]))
	newContent = append(newContent, line[:sByte]...)
	newContent = append(newContent, text...)
	newContent = append(newContent, line[eByte:]...)
	if hadNL {
		newContent = append(newContent, '\n')
	}

	oldLen := len(raw)
	d.lines[lineIdx] = newContent
	d.length += len(newContent) - oldLen
	d.editCount++
	return true
}

func (d *Document) applyMultiLine(start, end Position, text string) bool {
	startRaw := d.lines[start.Line]
	endRaw := d.lines[end.Line]
	startLine, _ := content(startRaw)
	endLine, _ := content(endRaw)

	startLen := lineLen(startLine, start.Unit)
	if start.Character > startLen {
		return false
	}
	e := end.Character
	endLen := lineLen(endLine, end.Unit)
	if e > endLen {
		e = endLen
	}

	sByte := byteOffset(startLine, start.Character, start.Unit)
	eByte := byteOffset(endLine, e, end.Unit)

	prefix := startRaw[:sByte]
	suffix := endRaw[eByte:]

	composite := make([]byte, 0, len(prefix)+len(text)+len(suffix))
	composite = append(composite, prefix...)
	composite = append(composite, text...)
	composite = append(composite, suffix...)

	newLines := linesFrom(string(composite))

	var removed, added int
	for i := start.Line; i <= end.Line; i++ {
		removed += len(d.lines[i])
	}
	for _, l := range newLines {
		added += len(l)
	}

	tail := append([][]byte{}, d.lines[end.Line+1:]...)
	d.lines = append(d.lines[:start.Line], append(newLines, tail...)...)
	d.length += added - removed
	d.editCount++
	assert.That(d.length == totalLen(d.lines), "document: length %d diverged from line bookkeeping %d", d.length, totalLen(d.lines))
	return true
}

// ApplyChanges applies each change in order. A rejected change leaves the
// document unchanged and does not abort the remaining changes in the
// sequence.
func (d *Document) ApplyChanges(changes []Change) {
	for _, c := range changes {
		d.ApplyChange(c)
	}
}
