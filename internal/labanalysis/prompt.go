package labanalysis

import (
	"fmt"
	"strings"
)

// maxPromptTextChars bounds the document text sent to a model.
const maxPromptTextChars = 12000

const systemPrompt = `You are a clinical laboratory assistant reviewing a lab result document for a physician.
Return ONLY a JSON object, no prose and no markdown, with this exact structure:

{
  "anomalies": [
    {
      "name": "analyte name exactly as written in the document",
      "value": "value with unit, e.g. 250 UI/L",
      "reference": "reference range as written, e.g. 10 - 35",
      "severity": "LOW | MEDIUM | HIGH | CRITICAL",
      "direction": "HIGHER_THAN_REFERENCE | LOWER_THAN_REFERENCE"
    }
  ],
  "danger_score": 0,
  "danger_level": "LOW | MEDIUM | HIGH | CRITICAL",
  "resume": "2 to 4 sentences naming the abnormal analytes",
  "model_version": "your model identifier"
}

Rules:
- The literal content of the document always wins over the request context. If the declared bilan type disagrees with the analytes in the document, analyze what the document contains.
- Only report analytes that are present in the document text. Never invent values.
- danger_score is an integer from 0 to 100. 85 or more is CRITICAL, 65 or more is HIGH, 35 or more is MEDIUM, otherwise LOW.
- Values far outside their reference range (twice the upper bound or more) are CRITICAL.
- Return an empty anomalies array when every value is within its reference range.`

// BuildPrompt returns the system and user prompts for one document. The output
// depends only on its inputs.
func BuildPrompt(text string, rc RequestContext) (system, user string) {
	var b strings.Builder

	b.WriteString("Request context (informational only):\n")
	writeField(&b, "Demande ID", rc.ID)
	writeField(&b, "Declared bilan type", rc.TypeBilan)
	writeField(&b, "Patient", rc.PatientName)
	writeField(&b, "Patient age", rc.PatientAge)
	writeField(&b, "Patient sex", rc.PatientSex)
	writeField(&b, "Requesting doctor", rc.DoctorName)
	writeField(&b, "Doctor specialty", rc.DoctorSpecialty)

	doc := strings.TrimSpace(text)
	if len(doc) > maxPromptTextChars {
		doc = truncateUTF8(doc, maxPromptTextChars)
	}

	b.WriteString("\nDocument text:\n<<<\n")
	b.WriteString(doc)
	b.WriteString("\n>>>\n\nAnalyze the document and answer with the JSON object only.")

	return systemPrompt, b.String()
}

func writeField(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = "not provided"
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
