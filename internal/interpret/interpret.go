package interpret

import (
	"fmt"
	"strings"

	"github.com/kalambet/localdesk/internal/entity"
)

// Kind says whether a result could be mapped onto the form.
type Kind int

const (
	Raw Kind = iota
	Structured
)

func (k Kind) String() string {
	if k == Structured {
		return "structured"
	}
	return "raw"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "structured":
		*k = Structured
	case "raw":
		*k = Raw
	default:
		return fmt.Errorf("unknown result kind %q", b)
	}
	return nil
}

// Result is the interpretation of one model response. Text always holds
// the trimmed original so a Raw result can be shown to the user as-is.
type Result struct {
	Kind  Kind         `json:"kind"`
	Patch entity.Patch `json:"patch,omitempty"`
	Text  string       `json:"text"`
}

func (r Result) IsStructured() bool { return r.Kind == Structured }

// Interpret maps raw onto form. A JSON object, possibly wrapped in prose or
// code fences, is tried first; labelled lines such as "Vendor: Acme" are the
// fallback. The result is Structured only when every anchor field resolved.
// Form fields the response leaves out keep their value from current.
func Interpret(raw string, form Form, current entity.Patch) Result {
	text := strings.TrimSpace(raw)
	res := Result{Kind: Raw, Text: text}
	if text == "" {
		return res
	}

	patch, ok := fromJSON(text, form)
	if !ok {
		patch, ok = fromLines(text, form)
	}
	if !ok {
		return res
	}

	for _, f := range form.Fields {
		if _, set := patch[f.Name]; set {
			continue
		}
		if v, has := current[f.Name]; has {
			patch[f.Name] = v
		}
	}
	res.Kind = Structured
	res.Patch = patch
	return res
}

func anchored(patch entity.Patch, form Form) bool {
	anchors := form.Anchors()
	if len(anchors) == 0 {
		return len(patch) > 0
	}
	for _, name := range anchors {
		if _, ok := patch[name]; !ok {
			return false
		}
	}
	return true
}
