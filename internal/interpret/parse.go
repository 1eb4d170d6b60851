package interpret

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/kalambet/localdesk/internal/entity"
)

const maxObjectScans = 32

var (
	fenceRe   = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	numberRe  = regexp.MustCompile(`-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?`)
	isoDateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

var dateLayouts = []string{
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// fromJSON decodes the first JSON object in text and resolves every form
// field against it.
func fromJSON(text string, form Form) (entity.Patch, bool) {
	doc, ok := decodeObject(text)
	if !ok {
		return nil, false
	}
	doc = lowerKeys(doc)

	patch := entity.Patch{}
	for _, f := range form.Fields {
		for _, path := range f.paths() {
			v, err := jsonpath.Get(strings.ToLower(path), doc)
			if err != nil || v == nil {
				continue
			}
			if c, ok := coerce(f, v); ok {
				patch[f.Name] = c
				break
			}
		}
	}
	if !anchored(patch, form) {
		return nil, false
	}
	return patch, true
}

// decodeObject finds a JSON object in text: the whole text, the first
// fenced block, or the first '{' that starts a decodable object. A
// top-level array yields its first object element.
func decodeObject(text string) (any, bool) {
	candidates := []string{text}
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		candidates = append([]string{strings.TrimSpace(m[1])}, candidates...)
	}

	for _, c := range candidates {
		var v any
		if err := json.Unmarshal([]byte(c), &v); err == nil {
			if obj, ok := firstObject(v); ok {
				return obj, true
			}
		}
	}

	start := 0
	for scans := 0; scans < maxObjectScans; scans++ {
		i := strings.IndexByte(text[start:], '{')
		if i < 0 {
			break
		}
		start += i
		var obj map[string]any
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&obj); err == nil {
			return obj, true
		}
		start++
	}
	return nil, false
}

func firstObject(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				return m, true
			}
		}
	}
	return nil, false
}

func lowerKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strings.ToLower(k)] = lowerKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = lowerKeys(val)
		}
		return out
	default:
		return v
	}
}

// coerce converts a decoded or scanned value to the field's kind. It
// reports false when nothing usable is present.
func coerce(f Field, v any) (any, bool) {
	if list, ok := v.([]any); ok && f.Kind != FieldList {
		if len(list) == 0 {
			return nil, false
		}
		v = list[0]
	}

	switch f.Kind {
	case FieldNumber:
		return toNumber(v)
	case FieldInteger:
		n, ok := toNumber(v)
		if !ok {
			return nil, false
		}
		return int(math.Round(n)), true
	case FieldDate:
		s, ok := toText(v)
		if !ok {
			return nil, false
		}
		return parseDate(s)
	case FieldList:
		return toList(v)
	case FieldChoice:
		s, ok := toText(v)
		if !ok {
			return nil, false
		}
		for _, c := range f.Choices {
			if strings.EqualFold(c, s) {
				return c, true
			}
		}
		return nil, false
	default:
		return toText(v)
	}
}

func toText(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	s = cleanText(s)
	return s, s != ""
}

// cleanText strips the markdown and punctuation models wrap values in.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ",;")
	s = strings.Trim(s, "\"'`*_ ")
	return strings.TrimSpace(s)
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		return parseNumber(t)
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseDate(s string) (string, bool) {
	if m := isoDateRe.FindString(s); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	s = cleanText(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func toList(v any) ([]string, bool) {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if s, ok := toText(e); ok {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ';' }) {
			if s := cleanText(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out, len(out) > 0
}
