// Package textprep loads narration input and removes markup the speech
// engine would otherwise read aloud.
package textprep

import (
	"fmt"
	"os"
	"strings"
)

// markup lists the characters dropped before segmentation. Carriage returns are
// included so CRLF input behaves like LF input.
const markup = "*#_`>\n\r"

var stripper = strings.NewReplacer(pairs(markup)...)

func pairs(chars string) []string {
	out := make([]string, 0, len(chars)*2)
	for _, c := range chars {
		out = append(out, string(c), "")
	}
	return out
}

// Clean removes markup characters and line breaks. Line breaks are removed, not
// replaced by spaces, so "a\nb" becomes "ab".
func Clean(text string) string {
	return stripper.Replace(text)
}

// ReadFile reads path in full and returns the cleaned text.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return Clean(string(data)), nil
}
