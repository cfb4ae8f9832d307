package parse

import (
	"archive/zip"
	"bytes"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
)

// Probe verifies that uploaded bytes carry the format their extension
// claims before anything is persisted. Text documents are always
// accepted since parsing them is lossy by definition.
func Probe(ext string, input []byte) error {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch {
	case textExts[ext]:
		return nil
	case ext == ExtPdf:
		return probePdf(input)
	case ext == ExtDocx:
		return probeDocx(input)
	}
	return errs.New(errs.UnsupportedFileType, "no parser for extension %q", ext)
}

func probePdf(input []byte) error {
	mtype := mimetype.Detect(input)
	if !mtype.Is("application/pdf") {
		return errs.New(errs.UnsupportedFileType, "expected a pdf, content is %s", mtype.String())
	}
	if err := api.Validate(bytes.NewReader(input), nil); err != nil {
		return errs.Wrap(errs.ParsePdf, err)
	}
	count, err := api.PageCount(bytes.NewReader(input), nil)
	if err != nil {
		return errs.Wrap(errs.ParsePdf, err)
	}
	log.Debug("[parse] pdf probe ok, %d pages", count)
	return nil
}

func probeDocx(input []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return errs.Wrap(errs.DocxRead, err)
	}
	if _, err := readZipFile(reader, "word/document.xml"); err != nil {
		return err
	}
	return nil
}
