package ollama

import (
	"fmt"
	"strings"
)

const maxTextSnippet = 4000

const responseContract = `Return a strict JSON object with keys:
detected_type (snake_case document label, or "unknown"),
is_document (boolean, false for selfies, random photos, screenshots of apps and anything that is not an official document),
confidence (integer from 0 to 100),
quality ("good", "acceptable", "poor" or "unreadable"),
red_flags (array of: "not_a_document", "selfie", "screenshot", "edited", "blurry", "partial", "low_quality", "wrong_type", "random_photo"),
reasoning (one short sentence).
No markdown, no extra keys.`

func buildImagePrompt(expectedType string) string {
	return fmt.Sprintf(`You verify documents uploaded for an education loan application in India.
The applicant says the attached image is: %s.
Identify what the image actually shows and judge whether it is a genuine, legible document.

%s`, expectedHint(expectedType), responseContract)
}

func buildTextPrompt(expectedType, text string) string {
	snippet := textSnippet(text, maxTextSnippet)
	return fmt.Sprintf(`You verify documents uploaded for an education loan application in India.
The applicant says the document below is: %s.
Only the extracted text of a PDF is available; set quality from how complete the text looks.

%s

Document text:
%s`, expectedHint(expectedType), responseContract, snippet)
}

// textSnippet keeps the first and last parts of long text, cut on rune
// boundaries. Statement totals and signatures tend to sit on the last page.
func textSnippet(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	tail := limit / 4
	head := limit - tail
	return strings.TrimSpace(string(runes[:head])) + "\n[...]\n" + strings.TrimSpace(string(runes[len(runes)-tail:]))
}

func expectedHint(expectedType string) string {
	if strings.TrimSpace(expectedType) == "" {
		return "an unspecified document"
	}
	return expectedType
}
