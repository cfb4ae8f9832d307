package chunk

import "unicode/utf8"

// cursor walks a buffer forward one sentence at a time. After advance the
// byte offset sits just past the sentence delimiter, so slice returns the
// sentences consumed so far including their stops.
type cursor struct {
	buf        string
	delim      rune
	byteOffset int
}

func newCursor(buf string, delim rune) *cursor {
	return &cursor{buf: buf, delim: delim}
}

// finished reports whether the cursor consumed the buffer. The last byte
// of the input never starts a new sentence, so the final offset lands on
// it rather than past it.
func (c *cursor) finished() bool {
	return len(c.buf) == 0 || c.byteOffset >= len(c.buf)-1
}

// slice returns everything consumed so far, or the whole buffer once the
// cursor is finished.
func (c *cursor) slice() string {
	if c.finished() {
		return c.buf
	}
	return c.buf[:c.byteOffset]
}

// advance moves the cursor past the next sentence stop. Runs of repeated
// delimiters do not count as stops and are skipped whole.
func (c *cursor) advance() {
	if c.finished() {
		return
	}
	for c.byteOffset < len(c.buf) {
		ch, size := utf8.DecodeRuneInString(c.buf[c.byteOffset:])
		c.byteOffset += size
		if c.byteOffset >= len(c.buf)-1 {
			break
		}
		if ch != c.delim {
			continue
		}
		stop := true
		for c.byteOffset < len(c.buf) {
			next, nsize := utf8.DecodeRuneInString(c.buf[c.byteOffset:])
			if next != c.delim {
				break
			}
			c.byteOffset += nsize
			stop = false
		}
		if stop {
			break
		}
	}
}

// advanceExact moves the cursor forward by the byte length of pat.
func (c *cursor) advanceExact(pat string) {
	c.byteOffset += len(pat)
	if c.byteOffset > len(c.buf) {
		c.byteOffset = len(c.buf)
	}
}

// peekBack reports whether pat sits immediately before the delimiter the
// cursor just passed.
func (c *cursor) peekBack(pat string) bool {
	dl := utf8.RuneLen(c.delim)
	if c.byteOffset < dl+len(pat) {
		return false
	}
	start := snapBack(c.byteOffset-dl-len(pat), c.buf)
	end := snapBack(c.byteOffset-dl, c.buf)
	return c.buf[start:end] == pat
}

// peekForward reports whether pat starts right after the delimiter the
// cursor just passed.
func (c *cursor) peekForward(pat string) bool {
	if c.byteOffset+len(pat) >= len(c.buf) {
		return false
	}
	end := snapFront(c.byteOffset+len(pat), c.buf)
	return c.buf[c.byteOffset:end] == pat
}

// advanceIfPeek reports whether the stop the cursor sits on is a skip
// pattern rather than a real sentence end. Forward patterns are consumed
// so the next advance starts past them.
func (c *cursor) advanceIfPeek(forward, back []string) bool {
	for _, pat := range back {
		if c.peekBack(pat) {
			return true
		}
	}
	for _, pat := range forward {
		if c.peekForward(pat) {
			c.advanceExact(pat)
			return true
		}
	}
	return false
}

// cursorRev walks a buffer backward one sentence at a time. The byte
// offset is kept on the delimiter preceding the current sentence, so
// slice returns everything after it.
type cursorRev struct {
	buf        string
	delim      rune
	byteOffset int
}

func newCursorRev(buf string, delim rune) *cursorRev {
	off := len(buf) - 1
	if off < 0 {
		off = 0
	}
	return &cursorRev{buf: buf, delim: delim, byteOffset: off}
}

func (c *cursorRev) finished() bool {
	return c.byteOffset == 0
}

// slice returns the buffer from just after the delimiter the cursor sits
// on, or the whole buffer once the start is reached.
func (c *cursorRev) slice() string {
	if c.finished() {
		return c.buf
	}
	return c.buf[snapFront(c.byteOffset+1, c.buf):]
}

// advance moves the cursor to the previous sentence stop, leaving the
// offset on its delimiter. Runs of repeated delimiters do not count and
// are skipped whole. When no stop remains the offset snaps to the start.
func (c *cursorRev) advance() {
	if c.finished() {
		return
	}
	pos := c.byteOffset
	if !isCharBoundary(c.buf, pos) {
		pos = snapBack(pos, c.buf)
	}
	for {
		if pos <= 0 {
			c.byteOffset = 0
			return
		}
		r, size := utf8.DecodeLastRuneInString(c.buf[:pos])
		if r != c.delim {
			pos -= size
			continue
		}
		runStart := pos - size
		run := false
		for runStart > 0 {
			pr, psize := utf8.DecodeLastRuneInString(c.buf[:runStart])
			if pr != c.delim {
				break
			}
			runStart -= psize
			run = true
		}
		if !run {
			c.byteOffset = pos - size
			return
		}
		pos = runStart
	}
}

// advanceExact moves the cursor backward by the byte length of pat.
func (c *cursorRev) advanceExact(pat string) {
	c.byteOffset -= len(pat)
	if c.byteOffset < 0 {
		c.byteOffset = 0
	}
}

// peekBack reports whether pat sits immediately before the delimiter the
// cursor is on.
func (c *cursorRev) peekBack(pat string) bool {
	if c.byteOffset < len(pat) {
		return false
	}
	start := snapBack(c.byteOffset-len(pat), c.buf)
	end := snapBack(c.byteOffset, c.buf)
	return c.buf[start:end] == pat
}

// peekForward reports whether pat starts right after the delimiter the
// cursor is on.
func (c *cursorRev) peekForward(pat string) bool {
	dl := utf8.RuneLen(c.delim)
	if c.byteOffset+dl+len(pat) > len(c.buf) {
		return false
	}
	start := snapFront(c.byteOffset+dl, c.buf)
	end := snapFront(c.byteOffset+dl+len(pat), c.buf)
	return c.buf[start:end] == pat
}

// advanceIfPeek reports whether the stop the cursor sits on is a skip
// pattern rather than a real sentence end. Back patterns are consumed so
// the next advance starts before them.
func (c *cursorRev) advanceIfPeek(forward, back []string) bool {
	for _, pat := range back {
		if c.peekBack(pat) {
			c.advanceExact(pat)
			return true
		}
	}
	for _, pat := range forward {
		if c.peekForward(pat) {
			return true
		}
	}
	return false
}

// snapBack moves i to the nearest rune boundary at or before it.
func snapBack(i int, s string) int {
	if i < 0 {
		return 0
	}
	for i > 0 && !isCharBoundary(s, i) {
		i--
	}
	return i
}

// snapFront moves i to the nearest rune boundary at or after it.
func snapFront(i int, s string) int {
	if i > len(s) {
		return len(s)
	}
	for i < len(s) && !isCharBoundary(s, i) {
		i++
	}
	return i
}
