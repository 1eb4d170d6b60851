package interpret

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are a form-filling assistant for a small business app. Your output must be ONLY a single valid JSON object with the keys listed below. Do not include any other text, prose, or markdown.

Task: %s

Keys:
%s
Rules:
- Omit a key when the input gives no value for it.
- Numbers are plain numbers without currency symbols or thousands separators.
- Dates use the format YYYY-MM-DD.`

// BuildPrompt composes the model prompt for form. userInput is the
// free-text request or description; it may be empty when an attachment
// carries the content.
func BuildPrompt(form Form, userInput string) string {
	var keys strings.Builder
	for _, f := range form.Fields {
		fmt.Fprintf(&keys, "- %q (%s)", f.Name, f.Kind.jsonType())
		if f.Description != "" {
			fmt.Fprintf(&keys, ": %s", f.Description)
		}
		if len(f.Choices) > 0 {
			fmt.Fprintf(&keys, " One of: %s.", strings.Join(f.Choices, ", "))
		}
		if f.Anchor {
			keys.WriteString(" Required.")
		}
		keys.WriteByte('\n')
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, promptTemplate, form.Instruction, keys.String())
	if input := strings.TrimSpace(userInput); input != "" {
		fmt.Fprintf(&sb, "\n\n[Input]\n%s", input)
	}
	return sb.String()
}
