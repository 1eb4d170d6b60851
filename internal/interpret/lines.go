package interpret

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kalambet/localdesk/internal/entity"
)

const separators = ":=-–"

// labelFillers may follow a cue inside a label, as in "Vendor name:" or
// "Total amount due:".
var labelFillers = map[string]bool{
	"name": true, "amount": true, "due": true, "paid": true, "value": true,
	"price": true, "cost": true, "sum": true, "total": true, "date": true,
}

type textLine struct {
	clean, lower string
}

// fromLines scans text line by line for labelled values. Each line fills at
// most one field. Lines whose label is exactly a cue are read first; looser
// labels only fill fields still missing after that. Within a pass each field
// takes the first line that yields a usable value.
func fromLines(text string, form Form) (entity.Patch, bool) {
	var lines []textLine
	for _, line := range strings.Split(text, "\n") {
		clean := strings.TrimLeft(strings.TrimSpace(line), "-*•#>\"' \t")
		if clean == "" {
			continue
		}
		lower := strings.ToLower(clean)
		if len(lower) != len(clean) {
			clean = lower
		}
		lines = append(lines, textLine{clean: clean, lower: lower})
	}

	patch := entity.Patch{}
	used := make([]bool, len(lines))
	for _, loose := range []bool{false, true} {
		for li, l := range lines {
			if used[li] {
				continue
			}
			for _, f := range form.Fields {
				if _, done := patch[f.Name]; done {
					continue
				}
				value, ok := valueAfterCue(l.clean, l.lower, f.cues(), loose)
				if !ok {
					continue
				}
				if v, ok := coerce(f, value); ok {
					patch[f.Name] = v
					used[li] = true
					break
				}
			}
		}
	}
	if !anchored(patch, form) {
		return nil, false
	}
	return patch, true
}

// valueAfterCue returns the text following a cue on the line when the cue is
// followed directly by a separator. With loose set, a cue that opens the line
// may also be followed by filler label words and a separator, or by
// whitespace and the value.
func valueAfterCue(clean, lower string, cues []string, loose bool) (string, bool) {
	for _, cue := range cues {
		from := 0
		for {
			i := strings.Index(lower[from:], cue)
			if i < 0 {
				break
			}
			i += from
			from = i + len(cue)

			if i > 0 && isWordRune(rune(lower[i-1])) {
				continue
			}
			rest := clean[i+len(cue):]
			trimmed := strings.TrimLeft(rest, " \t*_\"'")

			if r, size := utf8.DecodeRuneInString(trimmed); strings.ContainsRune(separators, r) {
				return afterSeparator(r, trimmed[size:]), true
			}
			if !loose || i > 0 {
				continue
			}
			if j := strings.IndexAny(rest, ":="); j >= 0 {
				if onlyFillers(rest[:j]) {
					return rest[j+1:], true
				}
				continue
			}
			if rest != "" && unicode.IsSpace(rune(rest[0])) {
				return rest, true
			}
		}
	}
	return "", false
}

// afterSeparator strips the separator run that follows a label. A dash after
// ':' or '=' is kept as the value's sign.
func afterSeparator(sep rune, s string) string {
	if sep == ':' || sep == '=' {
		return strings.TrimLeft(s, ":= \t")
	}
	return strings.TrimLeft(s, separators+" \t")
}

func onlyFillers(label string) bool {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !isWordRune(r)
	})
	for _, w := range words {
		if !labelFillers[w] {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
