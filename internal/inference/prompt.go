package inference

import (
	_ "embed"
	"encoding/json"
	"strings"

	"barrel-market-api/internal/model"
	"barrel-market-api/pkg/sanitize"
)

//go:embed prompt.txt
var instructions string

// BuildPrompt appends the sanitized submission, encoded as JSON, to the
// extraction instructions.
func BuildPrompt(sub model.Submission) (string, error) {
	sub.Text = sanitize.Text(sub.Text)
	input, err := json.Marshal(sub)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(instructions) + len(input) + 32)
	b.WriteString(instructions)
	b.WriteString("\nВход: ")
	b.Write(input)
	b.WriteString("\nРезультат:")
	return b.String(), nil
}
