package tts

import "strings"

// MaxTextChars is the longest text a single synthesis request should carry.
const MaxTextChars = 2900

// SplitText breaks text into pieces of at most limit bytes, cutting after the
// last '.' inside the window when there is one.
func SplitText(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '.')
		if cut == -1 {
			cut = runeBoundary(text, limit-1)
		}
		chunks = append(chunks, text[:cut+1])
		text = strings.TrimLeft(text[cut+1:], " \t\n\r")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// runeBoundary returns the index of the last byte of the rune ending at or
// before i, so a cut never splits a multi-byte character.
func runeBoundary(s string, i int) int {
	for i > 0 && i+1 < len(s) && !isRuneStart(s[i+1]) {
		i--
	}
	return i
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
