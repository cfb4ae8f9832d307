package parse

import (
	"strings"
	"unicode/utf8"
)

// Text parses plain text documents, txt, md, json, xml and csv. The
// whole document is one element, so the config window does not apply.
type Text struct {
	Config Config
}

// Parse decodes the input as UTF-8, replacing invalid sequences with the
// unicode replacement character.
func (p *Text) Parse(input []byte) (string, error) {
	if utf8.Valid(input) {
		return string(input), nil
	}
	return strings.ToValidUTF8(string(input), string(utf8.RuneError)), nil
}
