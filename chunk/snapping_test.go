package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnappingWindow(t *testing.T) {
	input := "I have a sentence. It is not very long. Here is another. Long schlong ding dong."
	chunker := NewSnappingWindow(1, 1)

	expected := []string{
		"I have a sentence. It is not very long.",
		" It is not very long. Here is another. Long schlong ding dong.",
	}

	chunks, err := chunker.Chunk(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, expected, chunks)
}

func TestSnappingWindowSkipsBack(t *testing.T) {
	input := "I have a sentence. It contains letters, words, etc. and it contains more. The most important of which is foobar., because it must be skipped."

	chunker := NewSnappingWindow(1, 1)
	chunker.ExtendSkips(nil, []string{"etc", "foobar"})

	expected := []string{
		"I have a sentence. It contains letters, words, etc. and it contains more.",
		" It contains letters, words, etc. and it contains more. The most important of which is foobar., because it must be skipped.",
	}

	chunks, err := chunker.Chunk(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, expected, chunks)
}

func TestSnappingWindowSkipsForward(t *testing.T) {
	input := "Go to sentences.org for more words. 50% off on words with >4 syllables. Leverage agile frameworks to provide robust high level overview at agile.com."

	chunker := NewSnappingWindow(1, 1)
	chunker.ExtendSkips([]string{"com", "org"}, nil)

	expected := []string{
		"Go to sentences.org for more words. 50% off on words with >4 syllables.",
		" 50% off on words with >4 syllables. Leverage agile frameworks to provide robust high level overview at agile.com.",
	}

	chunks, err := chunker.Chunk(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, expected, chunks)
}

func TestSnappingWindowSkipsCommonAbbreviations(t *testing.T) {
	input := "Words are hard. There are many words in existence, e.g. this, that, etc..., quite a few, as you can see. My opinion, available at nobodycares.com, is that words should convey meaning. Not everyone agrees however, which is why they leverage agile frameworks to provide robust synopses for high level overviews. The lucidity of meaning is, in fact, obscured and ambiguous, therefore the interpretation, i.e. the conveying of units of meaning is less than optimal. Jebem ti boga."

	chunker := NewSnappingWindow(1, 1)

	expected := []string{
		"Words are hard. There are many words in existence, e.g. this, that, etc..., quite a few, as you can see.",
		" There are many words in existence, e.g. this, that, etc..., quite a few, as you can see. My opinion, available at nobodycares.com, is that words should convey meaning. Not everyone agrees however, which is why they leverage agile frameworks to provide robust synopses for high level overviews.",
		" Not everyone agrees however, which is why they leverage agile frameworks to provide robust synopses for high level overviews. The lucidity of meaning is, in fact, obscured and ambiguous, therefore the interpretation, i.e. the conveying of units of meaning is less than optimal. Jebem ti boga.",
	}

	chunks, err := chunker.Chunk(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, expected, chunks)
}

func TestSnappingWindowTableOfContents(t *testing.T) {
	input := "Table of contents:\n1 Super cool stuff\n1.1 Some chonkers in rust\n1.2 Some data for your LLM\n1.3 ??? \n1.4 Profit \n1.4.1 Lambo\nHope you liked the table of contents. See more at content.co.com."

	chunker := NewSnappingWindow(1, 1)
	chunker.ExtendSkips([]string{"co", "com"}, []string{"com"})

	chunks, err := chunker.Chunk(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{input}, chunks)
}

func TestSnappingWindowEmptyInput(t *testing.T) {
	chunker := NewSnappingWindow(1, 1)

	for _, input := range []string{"", "  \n\t "} {
		chunks, err := chunker.Chunk(context.Background(), input)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestSnappingWindowSmallInput(t *testing.T) {
	input := "This whole text must be chunked fully. 0 chunks produced means the chunking implementation does not work. Please ensure this test works as intended, thank you!"
	chunker := NewSnappingWindow(1000, 5)

	chunks, err := chunker.Chunk(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{input}, chunks)
}

func TestSnappingWindowDeterministic(t *testing.T) {
	input := "One sentence here. Two sentences here. Three sentences here. Four sentences here. Five sentences here."
	chunker := NewSnappingWindow(20, 1)

	first, err := chunker.Chunk(context.Background(), input)
	require.NoError(t, err)
	second, err := chunker.Chunk(context.Background(), input)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestSnappingWindowURLNotSplit(t *testing.T) {
	input := "This one mentions www.google.com somewhere. This one does not."
	chunker := NewSnappingWindow(1, 0)

	chunks, err := chunker.Chunk(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "This one mentions www.google.com somewhere.", chunks[0])
	assert.Equal(t, " This one does not.", chunks[1])
}
