package prompt

import (
	"fmt"
	"strings"
)

// ClassifierSystemPrompt constrains the model to a single JSON object with one
// probability per class label.
func ClassifierSystemPrompt(labels []string) string {
	keys := make([]string, len(labels))
	for i, l := range labels {
		keys[i] = fmt.Sprintf("%q: <number 0..1>", l)
	}
	return `You are a radiology triage assistant reviewing chest X-ray images. You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.

Requirements:
- Output must be a single JSON object with a "probabilities" field.
- Provide exactly one probability for each label listed in the schema and no others.
- Probabilities must be between 0 and 1 and should sum to 1.
- If the image is not a chest X-ray, still answer and spread probability evenly.

Schema:
{"probabilities": {` + strings.Join(keys, ", ") + `}}`
}

// ClassifierUserPrompt is the text part accompanying the image.
func ClassifierUserPrompt() string {
	return "Classify this chest X-ray and respond with the JSON per schema."
}
