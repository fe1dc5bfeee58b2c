package dispatch

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_FitsInOne(t *testing.T) {
	assert.Equal(t, []string{"hello\n\nworld"}, Split("\nhello\n\nworld\n", 100))
	assert.Nil(t, Split("\n\n", 100))
	assert.Equal(t, []string{"abc"}, Split("abc", 0))
}

func TestSplit_PacksParagraphs(t *testing.T) {
	text := "para one\n\npara two\n\npara three"
	got := Split(text, 20)
	assert.Equal(t, []string{"para one\n\npara two", "para three"}, got)
}

func TestSplit_LinesWhenParagraphTooLong(t *testing.T) {
	text := "line 1\nline 2\nline 3\nline 4\n\ntail"
	got := Split(text, 14)
	assert.Equal(t, []string{"line 1\nline 2", "line 3\nline 4", "tail"}, got)
	for _, b := range got {
		assert.LessOrEqual(t, len(b), 14)
	}
}

func TestSplit_HardSplitOnRuneBoundary(t *testing.T) {
	line := strings.Repeat("人工智能", 10) // 120 bytes
	got := Split(line, 25)
	require.Greater(t, len(got), 1)
	assert.Equal(t, line, strings.Join(got, ""))
	for _, b := range got {
		assert.LessOrEqual(t, len(b), 25)
		assert.True(t, utf8.ValidString(b))
	}
}

func TestSplit_NeverSplitsFittingLines(t *testing.T) {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, strings.Repeat("x", i%9+1))
	}
	text := strings.Join(lines, "\n")
	for _, b := range Split(text, 30) {
		for _, l := range strings.Split(b, "\n") {
			assert.Contains(t, lines, l)
		}
	}
}

func TestBatches_NumberedWithinLimit(t *testing.T) {
	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, strings.Repeat("word ", 8))
	}
	text := strings.Join(paras, "\n\n")

	got := Batches(text, 100)
	require.Greater(t, len(got), 1)
	for i, b := range got {
		assert.LessOrEqual(t, len(b), 100)
		assert.True(t, strings.HasPrefix(b, batchHeader(i+1, len(got))), b)
	}
}

func TestBatches_SingleHasNoHeader(t *testing.T) {
	assert.Equal(t, []string{"short"}, Batches("short", 100))
}

func TestBatches_TinyLimitStillSplits(t *testing.T) {
	got := Batches("aaaa\nbbbb\ncccc", 6)
	assert.Equal(t, []string{"aaaa", "bbbb", "cccc"}, got)
	for _, b := range got {
		assert.LessOrEqual(t, len(b), 6)
	}
}

func TestBatches_HeaderNeverConsumesLimit(t *testing.T) {
	text := strings.Repeat("line of text\n", 40)
	for _, limit := range []int{1, 7, 8, 15, 16, 30} {
		got := Batches(text, limit)
		require.Greater(t, len(got), 1, "limit %d", limit)
		for _, b := range got {
			assert.NotEmpty(t, b, "limit %d", limit)
		}
	}
}
