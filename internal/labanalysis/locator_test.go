package labanalysis

import "testing"

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func fmtBound(p *float64) string {
	if p == nil {
		return "nil"
	}
	return formatNumber(*p)
}

func TestLocateAnalytes_ParsesValueUnitAndRange(t *testing.T) {
	text := "Résultats\nASAT : 250 UI/L (< 35)\nGlycémie à jeun : 1,45 g/L\nALAT 30 (10 - 45)"

	readings := LocateAnalytes(text, DefaultAnalytes)

	tests := []struct {
		key       string
		alias     string
		value     float64
		unit      string
		reference string
		low, high *float64
	}{
		{KeyASAT, "ASAT", 250, "UI/L", "< 35", nil, bound(35)},
		{KeyGlycemia, "Glycémie", 1.45, "", "0.7 - 1.1", bound(0.7), bound(1.1)},
		{KeyALAT, "ALAT", 30, "", "10 - 45", bound(10), bound(45)},
	}

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			r, ok := readings[tc.key]
			if !ok {
				t.Fatalf("no reading for %s", tc.key)
			}
			if r.Alias != tc.alias {
				t.Errorf("Alias = %q, want %q", r.Alias, tc.alias)
			}
			if r.Value != tc.value {
				t.Errorf("Value = %v, want %v", r.Value, tc.value)
			}
			if tc.unit != "" && r.Unit != tc.unit {
				t.Errorf("Unit = %q, want %q", r.Unit, tc.unit)
			}
			if r.Reference != tc.reference {
				t.Errorf("Reference = %q, want %q", r.Reference, tc.reference)
			}
			if !floatPtrEqual(r.Low, tc.low) || !floatPtrEqual(r.High, tc.high) {
				t.Errorf("bounds = (%s, %s), want (%s, %s)", fmtBound(r.Low), fmtBound(r.High), fmtBound(tc.low), fmtBound(tc.high))
			}
		})
	}
}

func TestLocateAnalytes_UnitAfterCommaDecimal(t *testing.T) {
	readings := LocateAnalytes("Glycémie : 1,45 g/L", DefaultAnalytes)
	r, ok := readings[KeyGlycemia]
	if !ok {
		t.Fatal("glycemia not located")
	}
	if r.Value != 1.45 || r.Unit != "g/L" {
		t.Fatalf("reading = %v %q, want 1.45 \"g/L\"", r.Value, r.Unit)
	}
}

func TestLocateAnalytes_ExcludedLinesAreSkipped(t *testing.T) {
	text := "Hémoglobine glyquée (HbA1c) 6.8 %\nHémoglobine 13.2 g/dL (12 - 16)"

	readings := LocateAnalytes(text, DefaultAnalytes)

	hb, ok := readings[KeyHemoglobin]
	if !ok {
		t.Fatal("haemoglobin not located")
	}
	if hb.Value != 13.2 {
		t.Errorf("haemoglobin = %v, want 13.2", hb.Value)
	}

	a1c, ok := readings["HBA1C"]
	if !ok {
		t.Fatal("HbA1c not located")
	}
	if a1c.Value != 6.8 || a1c.Unit != "%" {
		t.Errorf("HbA1c = %v %q, want 6.8 \"%%\"", a1c.Value, a1c.Unit)
	}
}

func TestLocateAnalytes_WholeWordOnly(t *testing.T) {
	text := "Sérologie PALUDISME 1 négative\nTPHA 0 négatif"

	readings := LocateAnalytes(text, DefaultAnalytes)

	if _, ok := readings[KeyPAL]; ok {
		t.Error("PAL matched inside PALUDISME")
	}
	if _, ok := readings[KeyTP]; ok {
		t.Error("TP matched inside TPHA")
	}
}

func TestLocateAnalytes_SkipsUnparsableValue(t *testing.T) {
	readings := LocateAnalytes("ASAT : non dosé\nALAT : non dosé", DefaultAnalytes)
	if _, ok := readings[KeyASAT]; ok {
		t.Error("expected ASAT to be skipped when no line carries a value")
	}
	if _, ok := readings[KeyALAT]; ok {
		t.Error("expected ALAT to be skipped when no line carries a value")
	}
}

func TestLocateAnalytes_HeaderLineWithoutValue(t *testing.T) {
	text := "Bilan hepatique\nTransaminases ASAT / ALAT\nASAT : 250 UI/L (10 - 35)\nALAT : 320 UI/L (10 - 45)"

	readings := LocateAnalytes(text, DefaultAnalytes)

	tests := []struct {
		key   string
		value float64
		ref   string
	}{
		{KeyASAT, 250, "10 - 35"},
		{KeyALAT, 320, "10 - 45"},
	}
	for _, tc := range tests {
		r, ok := readings[tc.key]
		if !ok {
			t.Errorf("%s not located", tc.key)
			continue
		}
		if r.Value != tc.value || r.Reference != tc.ref {
			t.Errorf("%s = %v (%q), want %v (%q)", tc.key, r.Value, r.Reference, tc.value, tc.ref)
		}
	}
}

func TestLocateAnalytes_AcronymsAreCaseSensitive(t *testing.T) {
	tests := []struct {
		name string
		text string
		key  string
		want bool
	}{
		{"lowercase vs is a word", "Match A vs B 45 points", "VS", false},
		{"uppercase VS", "VS 45 mm", "VS", true},
		{"canonical Hb", "Hb 11.2 g/dL", KeyHemoglobin, true},
		{"uppercase HB", "HB 11.2 g/dL", KeyHemoglobin, true},
		{"lowercase hb", "hb 11.2", KeyHemoglobin, false},
		{"lowercase tp", "tp 3 rendu le 12", KeyTP, false},
		{"lowercase alt", "touche alt 4", KeyALAT, false},
		{"full name any case", "GLYCÉMIE 1,20 g/L", KeyGlycemia, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, got := LocateAnalytes(tc.text, DefaultAnalytes)[tc.key]
			if got != tc.want {
				t.Fatalf("%s located = %v, want %v", tc.key, got, tc.want)
			}
		})
	}
}

func TestLocateAnalytes_UnreadableRangeUsesDefaults(t *testing.T) {
	readings := LocateAnalytes("CRP 12 mg/L (voir commentaire)", DefaultAnalytes)
	r, ok := readings["CRP"]
	if !ok {
		t.Fatal("CRP not located")
	}
	if r.High == nil || *r.High != 6 || r.Reference != "< 6" {
		t.Fatalf("reference = %q high = %s, want \"< 6\" and 6", r.Reference, fmtBound(r.High))
	}
}

func TestLocateAnalytes_EmptyText(t *testing.T) {
	if got := LocateAnalytes("   ", DefaultAnalytes); len(got) != 0 {
		t.Fatalf("expected no readings, got %d", len(got))
	}
}

func TestParseReferenceRange(t *testing.T) {
	tests := []struct {
		input     string
		low, high *float64
	}{
		{"< 35", nil, bound(35)},
		{"<=5", nil, bound(5)},
		{"≤ 5", nil, bound(5)},
		{"> 70", bound(70), nil},
		{"≥ 0,40", bound(0.4), nil},
		{"0,70 - 1,10", bound(0.7), bound(1.1)},
		{"10–35", bound(10), bound(35)},
		{"voir commentaire", nil, nil},
		{"", nil, nil},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			low, high := ParseReferenceRange(tc.input)
			if !floatPtrEqual(low, tc.low) || !floatPtrEqual(high, tc.high) {
				t.Fatalf("ParseReferenceRange(%q) = (%s, %s), want (%s, %s)",
					tc.input, fmtBound(low), fmtBound(high), fmtBound(tc.low), fmtBound(tc.high))
			}
		})
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference(bound(0.7), bound(1.1)); got != "0.7 - 1.1" {
		t.Errorf("got %q", got)
	}
	if got := FormatReference(nil, bound(35)); got != "< 35" {
		t.Errorf("got %q", got)
	}
	if got := FormatReference(bound(70), nil); got != "> 70" {
		t.Errorf("got %q", got)
	}
	if got := FormatReference(nil, nil); got != "" {
		t.Errorf("got %q", got)
	}
}
