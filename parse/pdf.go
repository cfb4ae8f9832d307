package parse

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
)

// PDF parses PDF documents page by page. The config window selects
// pages, filters drop matching lines.
type PDF struct {
	Config Config
}

// Parse extracts text from the configured page window. Lines equal to
// the zero-based page number are dropped, they are artifacts of page
// footers.
func (p *PDF) Parse(input []byte) (text string, err error) {
	start := time.Now()

	// The reader panics on malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = errs.New(errs.ParsePdf, "malformed pdf: %v", r)
		}
	}()

	filters, err := p.Config.compileFilters()
	if err != nil {
		return "", err
	}

	reader, err := lpdf.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return "", errs.Wrap(errs.ParsePdf, err)
	}

	total := reader.NumPage()
	var lines []string
	pages := 0

	for i := 0; i < total; i++ {
		if !p.Config.includeElement(i, total) {
			continue
		}

		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", errs.Wrap(errs.ParsePdf, err)
		}

	nextline:
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == strconv.Itoa(i) {
				continue
			}
			for _, filter := range filters {
				if filter.MatchString(line) {
					continue nextline
				}
			}
			lines = append(lines, line)
		}

		pages++
	}

	log.Debug("[parse] pdf %d/%d pages in %dms", pages, total, time.Since(start).Milliseconds())

	out := strings.Join(lines, "\n")
	if out == "" {
		return "", errs.New(errs.ParseConfig,
			"empty output (total pages: %d | start: %d | end: %d | range: %t)",
			total, p.Config.Start, p.Config.End, p.Config.Range)
	}

	return out, nil
}
