package alert

import (
	"strings"
	"unicode"
)

// UnknownLabel is the single internal sentinel for an unrecognized face.
// Every alias used by upstream callers collapses to it so cooldown keys,
// filenames and sound selection all agree.
const UnknownLabel = "unknown"

var unknownAliases = map[string]struct{}{
	"":        {},
	"unknown": {},
	"Unknown": {},
	"未知":      {},
	"陌生人":     {},
}

func CanonicalLabel(name string) string {
	if _, ok := unknownAliases[strings.TrimSpace(name)]; ok {
		return UnknownLabel
	}
	return name
}

func IsUnknown(label string) bool {
	return label == UnknownLabel
}

// SafeLabel maps every non-alphanumeric rune to '_' so the label can be
// embedded in a filename. An empty result collapses to the unknown label.
func SafeLabel(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return UnknownLabel
	}
	return b.String()
}
