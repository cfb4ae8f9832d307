package parse

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
)

// Docx parses DOCX documents. The config window selects body elements,
// paragraphs and tables, filters drop elements whose text matches.
type Docx struct {
	Config Config
}

// Parse extracts the text of the configured element window. Tables are
// rendered as markdown-style pipe rows.
func (p *Docx) Parse(input []byte) (string, error) {
	start := time.Now()

	filters, err := p.Config.compileFilters()
	if err != nil {
		return "", err
	}

	reader, err := zip.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return "", errs.Wrap(errs.DocxRead, err)
	}

	data, err := readZipFile(reader, "word/document.xml")
	if err != nil {
		return "", err
	}

	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", errs.Wrap(errs.DocxRead, err)
	}

	total := len(doc.Body.Elements)
	var kept []string

nextelement:
	for i, el := range doc.Body.Elements {
		if !p.Config.includeElement(i, total) {
			continue
		}
		text := el.text()
		for _, filter := range filters {
			if filter.MatchString(text) {
				continue nextelement
			}
		}
		kept = append(kept, text)
	}

	log.Debug("[parse] docx %d/%d elements in %dms", len(kept), total, time.Since(start).Milliseconds())

	return strings.Join(kept, "\n"), nil
}

func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, errs.Wrap(errs.DocxRead, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, errs.Wrap(errs.DocxRead, err)
		}
		return data, nil
	}
	return nil, errs.New(errs.DocxRead, "missing %s", name)
}

// docxDocument represents the main document structure
type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

// docxBody holds the body elements in document order.
type docxBody struct {
	Elements []docxElement
}

// docxElement is a single body child, a paragraph or a table.
type docxElement struct {
	Paragraph *docxParagraph
	Table     *docxTable
}

func (e docxElement) text() string {
	switch {
	case e.Paragraph != nil:
		return e.Paragraph.text()
	case e.Table != nil:
		return e.Table.text()
	}
	return ""
}

// UnmarshalXML keeps paragraphs and tables interleaved the way they
// appear in the document.
func (b *docxBody) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				var p docxParagraph
				if err := d.DecodeElement(&p, &t); err != nil {
					return err
				}
				b.Elements = append(b.Elements, docxElement{Paragraph: &p})
			case "tbl":
				var tbl docxTable
				if err := d.DecodeElement(&tbl, &t); err != nil {
					return err
				}
				b.Elements = append(b.Elements, docxElement{Table: &tbl})
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

// docxParagraph collects the text pieces of a paragraph, including runs
// nested in hyperlinks, in document order.
type docxParagraph struct {
	Pieces []string
}

// UnmarshalXML collects every text node under the paragraph.
func (p *docxParagraph) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				var text string
				if err := d.DecodeElement(&text, &t); err != nil {
					return err
				}
				p.Pieces = append(p.Pieces, text)
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

// text joins the trimmed non-empty pieces with spaces.
func (p *docxParagraph) text() string {
	var parts []string
	for _, piece := range p.Pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		parts = append(parts, piece)
	}
	return strings.Join(parts, " ")
}

// raw joins the pieces without separators, used for table cells.
func (p *docxParagraph) raw() string {
	return strings.Join(p.Pieces, "")
}

// docxTable represents a table in the document
type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

// docxRow represents a table row
type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

// docxCell represents a table cell
type docxCell struct {
	Paragraphs []docxParagraph `xml:"p"`
}

// text renders the table as markdown-style pipe rows, each row followed
// by a dash separator sized to its cells.
func (t *docxTable) text() string {
	var lines []string

	for _, row := range t.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			var buf strings.Builder
			for _, p := range cell.Paragraphs {
				buf.WriteString(" ")
				buf.WriteString(p.raw())
				buf.WriteString(" ")
			}
			cells = append(cells, buf.String())
		}

		lines = append(lines, "|"+strings.ReplaceAll(strings.Join(cells, "|"), "  ", " ")+"|")

		var dashes strings.Builder
		dashes.WriteString("|")
		for _, cell := range cells {
			dashes.WriteString(strings.Repeat("-", len(cell)))
			dashes.WriteString("|")
		}
		lines = append(lines, dashes.String())
	}

	return strings.Join(lines, "\n")
}
