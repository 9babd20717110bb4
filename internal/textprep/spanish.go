package textprep

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// SoftPause is the marker the acoustic model renders as a short breath.
const SoftPause = "…"

// longSentence is the rune count past which a sentence gets a soft pause.
const longSentence = 80

// Spanish prepares Spanish text: numbers are spelled out, whitespace and
// punctuation spacing are normalized, long sentences get a soft pause and
// missing inverted question and exclamation marks are restored. Applying it
// to its own output is a no-op.
func Spanish(text string) string {
	text = expandNumbers(text)
	text = collapseSpace(norm.NFC.String(text))
	text = spaceAfterPunctuation(text)

	sentences := splitSentences(text)
	for i, s := range sentences {
		s = insertSoftPause(s)
		sentences[i] = restoreInvertedMarks(s)
	}
	return strings.Join(sentences, " ")
}

// spaceAfterPunctuation inserts a space after , ; and : unless whitespace or
// closing punctuation already follows.
func spaceAfterPunctuation(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if !strings.ContainsRune(",;:", r) || i+1 == len(runes) {
			continue
		}
		next := runes[i+1]
		if next == ' ' || strings.ContainsRune(",;:.?!…)]}»\"'”’", next) {
			continue
		}
		b.WriteByte(' ')
	}
	return b.String()
}

// splitSentences cuts text after each run of terminal punctuation that is
// followed by a space or the end of the text. Closing quotes and brackets
// stay with the sentence they close.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i
		for j < len(runes) && isTerminal(runes[j]) {
			j++
		}
		for j < len(runes) && isClosing(runes[j]) {
			j++
		}
		if j < len(runes) && runes[j] != ' ' {
			i = j - 1
			continue
		}
		if s := strings.TrimSpace(string(runes[start:j])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// insertSoftPause puts a soft pause after the first comma of a long
// sentence. Inverted marks do not count towards the length so the result
// is stable once they are restored.
func insertSoftPause(sentence string) string {
	if strings.Contains(sentence, SoftPause) {
		return sentence
	}
	idx := strings.IndexByte(sentence, ',')
	if idx < 0 {
		return sentence
	}
	length := utf8.RuneCountInString(sentence) - strings.Count(sentence, "¿") - strings.Count(sentence, "¡")
	if length <= longSentence {
		return sentence
	}
	return sentence[:idx+1] + SoftPause + sentence[idx+1:]
}

// restoreInvertedMarks prepends ¿ or ¡ when the sentence asks or exclaims
// without the opening mark. Leading quotes and brackets stay in front.
func restoreInvertedMarks(sentence string) string {
	var open string
	if strings.Contains(sentence, "!") && !strings.Contains(sentence, "¡") {
		open += "¡"
	}
	if strings.Contains(sentence, "?") && !strings.Contains(sentence, "¿") {
		open += "¿"
	}
	if open == "" {
		return sentence
	}
	lead := strings.IndexFunc(sentence, func(r rune) bool { return !isOpening(r) })
	if lead < 0 {
		lead = len(sentence)
	}
	return sentence[:lead] + open + sentence[lead:]
}

func isTerminal(r rune) bool { return r == '.' || r == '?' || r == '!' }

func isClosing(r rune) bool { return strings.ContainsRune(")]}»\"'”’", r) }

func isOpening(r rune) bool { return strings.ContainsRune("([{«\"'“‘", r) }
