package parse

import (
	"regexp"
	"strings"

	"github.com/yaoapp/duan/errs"
)

// Supported document extensions.
const (
	ExtTxt  = "txt"
	ExtMd   = "md"
	ExtJSON = "json"
	ExtXML  = "xml"
	ExtCSV  = "csv"
	ExtPdf  = "pdf"
	ExtDocx = "docx"
)

// textExts are the extensions handled by the plain text parser.
var textExts = map[string]bool{
	ExtTxt:  true,
	ExtMd:   true,
	ExtJSON: true,
	ExtXML:  true,
	ExtCSV:  true,
}

// Parser turns raw document bytes into normalized text.
type Parser interface {
	Parse(input []byte) (string, error)
}

// Config controls which elements of a document are parsed. An element is
// parser specific, PDF pages or DOCX paragraphs. With range unset, start
// and end skip that many elements from the head and tail. With range
// set, they select the 1-based inclusive element range [start, end].
type Config struct {
	Start   uint     `json:"start"`
	End     uint     `json:"end"`
	Range   bool     `json:"range"`
	Filters []string `json:"filters"`
}

// Validate checks the element window and compiles the filters.
func (c Config) Validate() error {
	if c.Range {
		if c.Start < 1 {
			return errs.New(errs.Validation, "start cannot be 0 when using range")
		}
		if c.End <= c.Start {
			return errs.New(errs.Validation, "end must be greater than start when using range")
		}
	}
	_, err := c.compileFilters()
	return err
}

func (c Config) compileFilters() ([]*regexp.Regexp, error) {
	filters := make([]*regexp.Regexp, 0, len(c.Filters))
	for _, pattern := range c.Filters {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errs.New(errs.Regex, "invalid filter %q: %s", pattern, err.Error())
		}
		filters = append(filters, re)
	}
	return filters, nil
}

// includeElement reports whether the zero-based element index falls in
// the configured window of a document with total elements.
func (c Config) includeElement(index, total int) bool {
	if c.Range {
		return index >= int(c.Start)-1 && index <= int(c.End)-1
	}
	return index >= int(c.Start) && index < total-int(c.End)
}

// SupportedExtension reports whether documents with the extension can be
// parsed.
func SupportedExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return textExts[ext] || ext == ExtPdf || ext == ExtDocx
}

// New returns the default parser for the extension.
func New(ext string) (Parser, error) {
	return NewFrom(ext, Config{})
}

// NewFrom returns a parser for the extension with the given config.
func NewFrom(ext string, config Config) (Parser, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch {
	case textExts[ext]:
		return &Text{Config: config}, nil
	case ext == ExtPdf:
		return &PDF{Config: config}, nil
	case ext == ExtDocx:
		return &Docx{Config: config}, nil
	}
	return nil, errs.New(errs.UnsupportedFileType, "no parser for extension %q", ext)
}
