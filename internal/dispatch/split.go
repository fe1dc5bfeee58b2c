package dispatch

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Split cuts text into pieces of at most limit bytes. Paragraphs are packed whole where
// possible, then lines; a single line is only cut when it alone exceeds limit, and then
// on a rune boundary. limit <= 0 disables splitting.
func Split(text string, limit int) []string {
	text = strings.Trim(text, "\n")
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var batches []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			batches = append(batches, cur.String())
			cur.Reset()
		}
	}
	// appendPiece adds piece to the current batch if it fits
	appendPiece := func(sep, piece string) bool {
		if cur.Len() == 0 {
			if len(piece) > limit {
				return false
			}
			cur.WriteString(piece)
			return true
		}
		if cur.Len()+len(sep)+len(piece) > limit {
			return false
		}
		cur.WriteString(sep)
		cur.WriteString(piece)
		return true
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Trim(para, "\n")
		if para == "" || appendPiece("\n\n", para) {
			continue
		}
		flush()
		if appendPiece("", para) {
			continue
		}

		sep := ""
		for _, line := range strings.Split(para, "\n") {
			if appendPiece(sep, line) {
				sep = "\n"
				continue
			}
			flush()
			for len(line) > limit {
				cut := runeCut(line, limit)
				batches = append(batches, line[:cut])
				line = line[cut:]
			}
			cur.WriteString(line)
			sep = "\n"
		}
		flush()
	}
	flush()
	return batches
}

// Batches splits text and numbers the pieces "(i/n)" when there is more than one.
// The prefix counts against limit. When the prefix would take more than half of
// limit the pieces are sent unnumbered.
func Batches(text string, limit int) []string {
	parts := Split(text, limit)
	if len(parts) <= 1 {
		return parts
	}

	for i := 0; i < 3; i++ {
		reserve := len(batchHeader(len(parts), len(parts)))
		if 2*reserve > limit {
			return Split(text, limit)
		}
		next := Split(text, limit-reserve)
		done := len(next) == len(parts)
		parts = next
		if done {
			break
		}
	}

	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = batchHeader(i+1, len(parts)) + p
	}
	return out
}

func batchHeader(i, n int) string {
	return fmt.Sprintf("(%d/%d)\n", i, n)
}

// runeCut returns the largest index <= limit that starts a rune
func runeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		cut = size
	}
	return cut
}
