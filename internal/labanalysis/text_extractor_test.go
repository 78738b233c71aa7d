package labanalysis

import (
	"strings"
	"testing"
)

func TestExtractText_TjOperators(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Length 80 >>\nstream\n" +
		"BT /F1 12 Tf 72 712 Td (ASAT: 250 \\(10-35\\)) Tj ET\n" +
		"BT 72 690 Td (Glyc\\\\mie   1,45 g/L) Tj ET\n" +
		"endstream\nendobj\n")

	got := ExtractText(pdf)
	want := "ASAT: 250 (10-35)\nGlyc\\mie 1,45 g/L"
	if got != want {
		t.Fatalf("ExtractText() = %q, want %q", got, want)
	}
}

func TestExtractText_Empty(t *testing.T) {
	if got := ExtractText(nil); got != "" {
		t.Fatalf("ExtractText(nil) = %q, want empty", got)
	}
	if got := ExtractText([]byte{}); got != "" {
		t.Fatalf("ExtractText(empty) = %q, want empty", got)
	}
}

func TestExtractText_ScrapeFallback(t *testing.T) {
	data := []byte("\x00\x01lab report\x00\x02ab\x00Glycemie   1.45 g/L\x00\xff")

	got := ExtractText(data)
	want := "lab report Glycemie 1.45 g/L"
	if got != want {
		t.Fatalf("ExtractText() = %q, want %q", got, want)
	}
}

func TestScrapePrintableRuns_Truncates(t *testing.T) {
	data := []byte(strings.Repeat("a", 20000))

	got := scrapePrintableRuns(data)
	if len(got) != maxScrapeChars {
		t.Fatalf("len = %d, want %d", len(got), maxScrapeChars)
	}
}

func TestScrapePrintableRuns_NothingPrintable(t *testing.T) {
	if got := scrapePrintableRuns([]byte{0x00, 0x01, 0xfe, 'a', 'b', 0x02}); got != "" {
		t.Fatalf("scrapePrintableRuns() = %q, want empty", got)
	}
}

func TestExtractWithPDFReader_GarbageDoesNotPanic(t *testing.T) {
	inputs := [][]byte{
		[]byte("%PDF-1.7\n%%EOF"),
		[]byte("%PDF-1.4\nxref\n0 1\ntrailer\n<< /Root 1 0 R >>\nstartxref\n9\n%%EOF"),
		[]byte("not a pdf at all"),
	}
	for _, in := range inputs {
		_ = extractWithPDFReader(in)
	}
}
