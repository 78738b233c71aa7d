package labanalysis

import "regexp"

// AnalyteDefinition describes a biomarker the rule-based analyzer looks for.
type AnalyteDefinition struct {
	Key     string
	Aliases []string
	// Exclude lists terms that disqualify a line, so that "hémoglobine glyquée"
	// is not read as a haemoglobin value.
	Exclude []string
	Low     *float64
	High    *float64
	Unit    string
}

// Analyte keys used by escalation rules.
const (
	KeyASAT       = "ASAT"
	KeyALAT       = "ALAT"
	KeyGGT        = "GGT"
	KeyPAL        = "PAL"
	KeyBilirubin  = "BILIRUBINE TOTALE"
	KeyTP         = "TP"
	KeyGlycemia   = "GLYCEMIE"
	KeyHemoglobin = "HEMOGLOBINE"
)

// hepaticKeys are the markers counted by the hepatic escalation rule.
var hepaticKeys = []string{KeyASAT, KeyALAT, KeyGGT, KeyPAL, KeyBilirubin, KeyTP}

// keyMarkerKeys are the markers whose mere mention, without a readable value,
// makes an all-normal result untrustworthy.
var keyMarkerKeys = []string{KeyASAT, KeyALAT, KeyGlycemia}

func bound(v float64) *float64 { return &v }

// DefaultAnalytes is the static biomarker table with adult default bounds.
// Bounds are used only when a document does not state its own range.
var DefaultAnalytes = []AnalyteDefinition{
	// Hepatic panel
	{Key: KeyASAT, Aliases: []string{"ASAT", "TGO", "SGOT", "AST", "aspartate aminotransférase"}, High: bound(35), Unit: "UI/L"},
	{Key: KeyALAT, Aliases: []string{"ALAT", "TGP", "SGPT", "ALT", "alanine aminotransférase"}, High: bound(45), Unit: "UI/L"},
	{Key: KeyGGT, Aliases: []string{"GGT", "gamma GT", "gamma-GT", "γGT", "gamma glutamyl transférase"}, High: bound(55), Unit: "UI/L"},
	{Key: KeyPAL, Aliases: []string{"PAL", "phosphatases alcalines", "phosphatase alcaline", "ALP"}, Low: bound(40), High: bound(130), Unit: "UI/L"},
	{Key: KeyBilirubin, Aliases: []string{"bilirubine totale", "bilirubine T", "bilirubine"}, Exclude: []string{"conjuguée", "conjuguee", "directe", "libre"}, High: bound(12), Unit: "mg/L"},
	{Key: KeyTP, Aliases: []string{"TP", "taux de prothrombine"}, Low: bound(70), Unit: "%"},

	// Renal panel
	{Key: "CREATININE", Aliases: []string{"créatinine", "creatinine", "créatininémie"}, Exclude: []string{"clairance"}, Low: bound(6), High: bound(13), Unit: "mg/L"},
	{Key: "UREE", Aliases: []string{"urée", "uree", "urémie"}, Low: bound(0.15), High: bound(0.45), Unit: "g/L"},
	{Key: "ACIDE URIQUE", Aliases: []string{"acide urique", "uricémie"}, Low: bound(25), High: bound(70), Unit: "mg/L"},

	// Metabolic panel
	{Key: KeyGlycemia, Aliases: []string{"glycémie", "glycemie", "glucose"}, Low: bound(0.70), High: bound(1.10), Unit: "g/L"},
	{Key: "HBA1C", Aliases: []string{"HbA1c", "hémoglobine glyquée", "hemoglobine glyquee"}, High: bound(6.0), Unit: "%"},
	{Key: "CHOLESTEROL TOTAL", Aliases: []string{"cholestérol total", "cholesterol total"}, High: bound(2.0), Unit: "g/L"},
	{Key: "TRIGLYCERIDES", Aliases: []string{"triglycérides", "triglycerides"}, High: bound(1.5), Unit: "g/L"},
	{Key: "HDL", Aliases: []string{"HDL", "HDL cholestérol", "HDL-C"}, Low: bound(0.40), Unit: "g/L"},
	{Key: "LDL", Aliases: []string{"LDL", "LDL cholestérol", "LDL-C"}, High: bound(1.60), Unit: "g/L"},

	// Haematologic panel
	{Key: KeyHemoglobin, Aliases: []string{"hémoglobine", "hemoglobine", "hemoglobin", "Hb"}, Exclude: []string{"glyquée", "glyquee", "HbA1c", "corpusculaire"}, Low: bound(12.0), High: bound(16.0), Unit: "g/dL"},
	{Key: "GLOBULES BLANCS", Aliases: []string{"globules blancs", "leucocytes", "GB"}, Low: bound(4.0), High: bound(10.0), Unit: "G/L"},
	{Key: "GLOBULES ROUGES", Aliases: []string{"globules rouges", "hématies", "hematies"}, Low: bound(4.0), High: bound(5.5), Unit: "T/L"},
	{Key: "PLAQUETTES", Aliases: []string{"plaquettes", "thrombocytes"}, Low: bound(150), High: bound(400), Unit: "G/L"},
	{Key: "HEMATOCRITE", Aliases: []string{"hématocrite", "hematocrite"}, Low: bound(36), High: bound(48), Unit: "%"},
	{Key: "VGM", Aliases: []string{"VGM", "volume globulaire moyen"}, Low: bound(80), High: bound(100), Unit: "fL"},

	// Inflammatory panel
	{Key: "CRP", Aliases: []string{"CRP", "protéine C réactive", "proteine C reactive"}, High: bound(6), Unit: "mg/L"},
	{Key: "VS", Aliases: []string{"VS", "vitesse de sédimentation", "vitesse de sedimentation"}, High: bound(20), Unit: "mm"},
	{Key: "FERRITINE", Aliases: []string{"ferritine", "ferritinémie"}, Low: bound(20), High: bound(300), Unit: "ng/mL"},

	// Electrolytes
	{Key: "SODIUM", Aliases: []string{"sodium", "natrémie", "natremie", "Na+"}, Low: bound(135), High: bound(145), Unit: "mmol/L"},
	{Key: "POTASSIUM", Aliases: []string{"potassium", "kaliémie", "kaliemie", "K+"}, Low: bound(3.5), High: bound(5.0), Unit: "mmol/L"},
}

// markerVocabulary is the fixed keyword list that counts as evidence that a
// text is a lab report at all: every non-acronym alias of the table plus a few
// generic lab words, folded. Acronyms are checked apart in acronymMarkers.
var markerVocabulary = func() []string {
	words := []string{"prothrombine", "transaminases"}
	seen := make(map[string]bool)
	for _, def := range DefaultAnalytes {
		for _, alias := range def.Aliases {
			if isAcronym(alias) {
				continue
			}
			words = append(words, foldText(alias))
		}
	}
	vocab := words[:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			vocab = append(vocab, w)
		}
	}
	return vocab
}()

// acronymMarkers match the acronym aliases case-sensitively, so "CRP" is
// evidence and "vs" is not.
var acronymMarkers = func() []*regexp.Regexp {
	var patterns []*regexp.Regexp
	seen := make(map[string]bool)
	for _, def := range DefaultAnalytes {
		for _, alias := range def.Aliases {
			if !isAcronym(alias) || seen[alias] {
				continue
			}
			seen[alias] = true
			patterns = append(patterns, aliasPattern(alias))
		}
	}
	return patterns
}()
