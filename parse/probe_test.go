package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaoapp/duan/errs"
)

func TestProbeText(t *testing.T) {
	for _, ext := range []string{"txt", "md", "json", "xml", "csv"} {
		assert.NoError(t, Probe(ext, []byte("anything goes")))
	}
}

func TestProbePdfRejectsOtherContent(t *testing.T) {
	err := Probe("pdf", []byte("just some text pretending to be a pdf"))
	require.Error(t, err)
	assert.Equal(t, errs.UnsupportedFileType, errs.KindOf(err))

	err = Probe("pdf", buildDocx(t, docxFixture))
	require.Error(t, err)
	assert.Equal(t, errs.UnsupportedFileType, errs.KindOf(err))
}

func TestProbeDocx(t *testing.T) {
	assert.NoError(t, Probe("docx", buildDocx(t, docxFixture)))

	err := Probe("docx", []byte("not an archive"))
	require.Error(t, err)
	assert.Equal(t, errs.DocxRead, errs.KindOf(err))
}

func TestProbeUnsupported(t *testing.T) {
	err := Probe("exe", []byte{0x4d, 0x5a})
	require.Error(t, err)
	assert.Equal(t, errs.UnsupportedFileType, errs.KindOf(err))
}
