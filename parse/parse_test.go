package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaoapp/duan/errs"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{Start: 2, End: 5, Range: true}.Validate())
	assert.NoError(t, Config{Filters: []string{`^\d+$`}}.Validate())

	err := Config{Start: 0, End: 5, Range: true}.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))

	err = Config{Start: 5, End: 5, Range: true}.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))

	err = Config{Filters: []string{"("}}.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.Regex, errs.KindOf(err))
}

func TestConfigIncludeElement(t *testing.T) {
	// Skip mode drops one element from each end.
	skip := Config{Start: 1, End: 1}
	var included []int
	for i := 0; i < 5; i++ {
		if skip.includeElement(i, 5) {
			included = append(included, i)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, included)

	// Range mode selects the 1-based inclusive window.
	window := Config{Start: 2, End: 3, Range: true}
	included = nil
	for i := 0; i < 5; i++ {
		if window.includeElement(i, 5) {
			included = append(included, i)
		}
	}
	assert.Equal(t, []int{1, 2}, included)

	// Skipping more than the total includes nothing.
	empty := Config{Start: 0, End: 9}
	for i := 0; i < 5; i++ {
		assert.False(t, empty.includeElement(i, 5))
	}
}

func TestNewFrom(t *testing.T) {
	for _, ext := range []string{"txt", "md", "json", "xml", "csv"} {
		parser, err := New(ext)
		require.NoError(t, err)
		assert.IsType(t, &Text{}, parser)
	}

	parser, err := New("pdf")
	require.NoError(t, err)
	assert.IsType(t, &PDF{}, parser)

	parser, err = New("docx")
	require.NoError(t, err)
	assert.IsType(t, &Docx{}, parser)

	parser, err = New(".PDF")
	require.NoError(t, err)
	assert.IsType(t, &PDF{}, parser)

	_, err = New("exe")
	require.Error(t, err)
	assert.Equal(t, errs.UnsupportedFileType, errs.KindOf(err))

	assert.True(t, SupportedExtension("md"))
	assert.True(t, SupportedExtension(".docx"))
	assert.False(t, SupportedExtension("exe"))
}

func TestTextParser(t *testing.T) {
	parser := &Text{}

	out, err := parser.Parse([]byte("Hello world"))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)

	out, err = parser.Parse([]byte{0x48, 0x69, 0xff, 0xfe})
	require.NoError(t, err)
	assert.Equal(t, "Hi�", out)
}

func TestPDFParserMalformed(t *testing.T) {
	parser := &PDF{}

	_, err := parser.Parse([]byte("this is not a pdf"))
	require.Error(t, err)
	assert.Equal(t, errs.ParsePdf, errs.KindOf(err))
}

func TestPDFParserBadFilter(t *testing.T) {
	parser := &PDF{Config: Config{Filters: []string{"("}}}

	_, err := parser.Parse([]byte("%PDF-1.4"))
	require.Error(t, err)
	assert.Equal(t, errs.Regex, errs.KindOf(err))
}
