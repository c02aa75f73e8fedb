package repository

import (
	"strings"

	"plainspeak-backend/models"
)

// Paragraphs longer than this are split further into sentences.
const longParagraphThreshold = 500

// SegmentText splits raw text into ordered segments. Input is split on
// blank-line paragraph boundaries; paragraphs over the threshold are
// split again at sentence-ending punctuation. Each segment carries a
// running character offset, advanced by the segment length plus the
// delimiter width (1 after a sentence, 2 after a paragraph). Blank
// pieces are skipped without advancing the offset, so offsets drift
// from true source positions when blank paragraphs separate real ones.
func SegmentText(text string) []models.Segment {
	segments := []models.Segment{}
	current := 0

	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}

		if len(para) > longParagraphThreshold {
			for _, sent := range splitSentences(para) {
				if strings.TrimSpace(sent) == "" {
					continue
				}
				end := current + len(sent)
				segments = append(segments, models.Segment{
					Text:       strings.TrimSpace(sent),
					StartIndex: current,
					EndIndex:   end,
				})
				current = end + 1
			}
		} else {
			end := current + len(para)
			segments = append(segments, models.Segment{
				Text:       strings.TrimSpace(para),
				StartIndex: current,
				EndIndex:   end,
			})
			current = end + 2
		}
	}

	return segments
}

// splitSentences cuts a paragraph after '.', '!' or '?' when followed by
// whitespace. The punctuation stays with its sentence; the whitespace
// run between sentences is consumed.
func splitSentences(para string) []string {
	var sentences []string
	start := 0
	i := 0
	for i < len(para) {
		c := para[i]
		if (c == '.' || c == '!' || c == '?') && i+1 < len(para) && isSpace(para[i+1]) {
			sentences = append(sentences, para[start:i+1])
			i++
			for i < len(para) && isSpace(para[i]) {
				i++
			}
			start = i
			continue
		}
		i++
	}
	if start < len(para) {
		sentences = append(sentences, para[start:])
	}
	return sentences
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
