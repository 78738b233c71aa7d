package labanalysis

import (
	"bytes"
	"io"
	"log"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	maxTextBytes    = 100 * 1024 // cap for library-extracted text
	maxScrapeRuns   = 1200
	maxScrapeChars  = 12000
	minScrapeRunLen = 4
)

var (
	// tjOperatorRe matches literal text-drawing operators of uncompressed content streams.
	tjOperatorRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*Tj`)

	printableRunRe = regexp.MustCompile(`[\x20-\x7E]{4,}`)

	horizontalSpaceRe = regexp.MustCompile(`[ \t\f\v\r]+`)
	anySpaceRe        = regexp.MustCompile(`\s+`)
)

// ExtractText returns a best-effort plain-text rendition of a PDF.
// It never fails: an empty string means nothing readable was found.
func ExtractText(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	if text := extractTjOperators(data); text != "" {
		return text
	}

	if text := extractWithPDFReader(data); text != "" {
		return text
	}

	return scrapePrintableRuns(data)
}

// extractTjOperators pulls the literal strings out of "(...) Tj" operators.
func extractTjOperators(data []byte) string {
	matches := tjOperatorRe.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return ""
	}

	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		line := collapseHorizontalSpace(unescapePDFString(string(m[1])))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func unescapePDFString(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			switch next := s[i+1]; next {
			case '(', ')', '\\':
				b.WriteByte(next)
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// extractWithPDFReader handles compressed content streams the Tj scan cannot see.
// It is wrapped in recover() because the reader panics on some malformed files.
func extractWithPDFReader(data []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[lab-analysis] recovered from pdf reader panic: %v", r)
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return ""
	}

	raw, err := io.ReadAll(io.LimitReader(plain, maxTextBytes))
	if err != nil {
		return ""
	}

	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if trimmed := collapseHorizontalSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}

// scrapePrintableRuns is the last resort for image-only or exotic PDFs.
func scrapePrintableRuns(data []byte) string {
	runs := printableRunRe.FindAll(data, maxScrapeRuns)
	if len(runs) == 0 {
		return ""
	}

	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		if len(r) >= minScrapeRunLen {
			parts = append(parts, string(r))
		}
	}

	joined := strings.Join(parts, " ")
	if len(joined) > maxScrapeChars {
		joined = joined[:maxScrapeChars]
	}
	return strings.TrimSpace(anySpaceRe.ReplaceAllString(joined, " "))
}

func collapseHorizontalSpace(s string) string {
	return strings.TrimSpace(horizontalSpaceRe.ReplaceAllString(s, " "))
}
