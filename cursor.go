// FILE: lixenwraith/phaseconf/cursor.go
package phaseconf

// NameIterator is a cursor over a dot-separated property name.
//
// The position is a segment boundary: -1 before the first segment, the index of a
// separating dot between segments, or len(name) after the last segment. A segment may be
// wrapped in double quotes to carry dots ("map.\"a.b\".x"); quoted segments compare and
// render without their quotes. Navigation and equality tests never allocate.
type NameIterator struct {
	name string
	pos  int
}

// NewNameIterator returns a cursor positioned before the first segment of name.
func NewNameIterator(name string) *NameIterator {
	return &NameIterator{name: name, pos: -1}
}

// Name returns the full property name.
func (it *NameIterator) Name() string {
	return it.name
}

// Position returns the current boundary index.
func (it *NameIterator) Position() int {
	return it.pos
}

// GoTo moves the cursor to a boundary previously obtained from Position.
func (it *NameIterator) GoTo(pos int) {
	it.pos = pos
}

// HasNext reports whether a segment follows the cursor.
func (it *NameIterator) HasNext() bool {
	return it.pos < len(it.name)
}

// HasPrevious reports whether a segment precedes the cursor.
func (it *NameIterator) HasPrevious() bool {
	return it.pos >= 0
}

// Next moves the cursor past the next segment.
func (it *NameIterator) Next() {
	if it.HasNext() {
		it.pos = it.nextEnd()
	}
}

// Previous moves the cursor back before the previous segment.
func (it *NameIterator) Previous() {
	if it.HasPrevious() {
		it.pos = it.prevStart()
	}
}

// NextSegment returns the segment after the cursor, unquoted.
func (it *NameIterator) NextSegment() string {
	if !it.HasNext() {
		return ""
	}
	return unquoteSegment(it.name[it.pos+1 : it.nextEnd()])
}

// PreviousSegment returns the segment before the cursor, unquoted.
func (it *NameIterator) PreviousSegment() string {
	if !it.HasPrevious() {
		return ""
	}
	return unquoteSegment(it.name[it.prevStart()+1 : it.pos])
}

// NextSegmentEquals compares the next segment with s.
func (it *NameIterator) NextSegmentEquals(s string) bool {
	return it.HasNext() && it.NextSegment() == s
}

// PreviousSegmentEquals compares the previous segment with s.
func (it *NameIterator) PreviousSegmentEquals(s string) bool {
	return it.HasPrevious() && it.PreviousSegment() == s
}

// AllPreviousSegments returns the raw name up to the cursor, quotes preserved.
func (it *NameIterator) AllPreviousSegments() string {
	if it.pos <= 0 {
		return ""
	}
	return it.name[:it.pos]
}

// AllNextSegments returns the raw name after the cursor, quotes preserved.
func (it *NameIterator) AllNextSegments() string {
	if !it.HasNext() {
		return ""
	}
	return it.name[it.pos+1:]
}

func (it *NameIterator) String() string {
	return it.name
}

// nextEnd finds the boundary that closes the segment after the cursor.
func (it *NameIterator) nextEnd() int {
	quoted := false
	for i := it.pos + 1; i < len(it.name); i++ {
		switch it.name[i] {
		case '"':
			quoted = !quoted
		case '.':
			if !quoted {
				return i
			}
		}
	}
	return len(it.name)
}

// prevStart finds the boundary that opens the segment before the cursor.
func (it *NameIterator) prevStart() int {
	quoted := false
	for i := it.pos - 1; i >= 0; i-- {
		switch it.name[i] {
		case '"':
			quoted = !quoted
		case '.':
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func unquoteSegment(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// quoteSegment renders a map key as a single segment, quoting it when it holds a dot.
func quoteSegment(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return `"` + s + `"`
		}
	}
	return s
}

// splitSegments splits a dotted name into unquoted segments.
func splitSegments(name string) []string {
	if name == "" {
		return nil
	}
	var segments []string
	it := NewNameIterator(name)
	for it.HasNext() {
		segments = append(segments, it.NextSegment())
		it.Next()
	}
	return segments
}
