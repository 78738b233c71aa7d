package labanalysis

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Reading is one analyte value located in a document.
type Reading struct {
	Key       string
	Alias     string // alias as it appears in the document
	Value     float64
	Unit      string
	Reference string
	Low       *float64
	High      *float64
	Line      string
}

var (
	numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

	// unitRe matches a unit token directly following a value, e.g. "g/L", "UI/L", "%", "µmol/L".
	unitRe = regexp.MustCompile(`^\s*([%‰]|[A-Za-zµμ][A-Za-zµμ0-9/.^³²]*(?:/[A-Za-z0-9.^³²]+)?)`)

	parenRe = regexp.MustCompile(`\(([^()]*)\)`)

	rangeBetweenRe = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)\s*(?:-|–|—|à|a)\s*(\d+(?:[.,]\d+)?)`)
	rangeBelowRe   = regexp.MustCompile(`^(?:<=|<|≤|inf(?:érieur)?\s*à)\s*(\d+(?:[.,]\d+)?)`)
	rangeAboveRe   = regexp.MustCompile(`^(?:>=|>|≥|sup(?:érieur)?\s*à)\s*(\d+(?:[.,]\d+)?)`)
)

// maxAcronymRunes is the longest alias treated as an acronym. Acronyms such
// as "VS", "Hb" or "TP" only match as written or in upper case; lowercase
// "vs" or "tp" are ordinary words.
const maxAcronymRunes = 3

func isAcronym(alias string) bool {
	return utf8.RuneCountInString(alias) <= maxAcronymRunes
}

// aliasPattern compiles a whole-word matcher for an alias: case-insensitive
// for names, case-sensitive for acronyms. Word boundaries are Unicode-aware
// so that accented aliases behave.
func aliasPattern(alias string) *regexp.Regexp {
	if isAcronym(alias) {
		forms := regexp.QuoteMeta(alias)
		if upper := strings.ToUpper(alias); upper != alias {
			forms += "|" + regexp.QuoteMeta(upper)
		}
		return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(` + forms + `)(?:[^\p{L}\p{N}]|$)`)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + regexp.QuoteMeta(alias) + `)(?:[^\p{L}\p{N}]|$)`)
}

type compiledAnalyte struct {
	def      AnalyteDefinition
	patterns []*regexp.Regexp
	excludes []string
}

func compileAnalytes(defs []AnalyteDefinition) []compiledAnalyte {
	compiled := make([]compiledAnalyte, 0, len(defs))
	for _, def := range defs {
		ca := compiledAnalyte{def: def}
		for _, alias := range def.Aliases {
			ca.patterns = append(ca.patterns, aliasPattern(alias))
		}
		for _, ex := range def.Exclude {
			ca.excludes = append(ca.excludes, foldText(ex))
		}
		compiled = append(compiled, ca)
	}
	return compiled
}

// defaultCompiled is built once; the table is read-only.
var defaultCompiled = compileAnalytes(DefaultAnalytes)

// LocateAnalytes finds one reading per analyte in text. Analytes with no
// matching line or no parsable value are absent from the result.
func LocateAnalytes(text string, defs []AnalyteDefinition) map[string]Reading {
	return locateCompiled(text, compileAnalytes(defs))
}

func locateCompiled(text string, analytes []compiledAnalyte) map[string]Reading {
	readings := make(map[string]Reading)
	if strings.TrimSpace(text) == "" {
		return readings
	}

	lines := splitLines(text)
	for _, ca := range analytes {
		if r, ok := locateOne(lines, ca); ok {
			readings[ca.def.Key] = r
		}
	}
	return readings
}

// locateOne returns the first line naming the analyte that carries a value.
// Lines that only name it, such as a "Transaminases ASAT / ALAT" header, are passed over.
func locateOne(lines []string, ca compiledAnalyte) (Reading, bool) {
	for _, line := range lines {
		if r, ok := readLine(line, ca); ok {
			return r, true
		}
	}
	return Reading{}, false
}

// locateAll returns every reading of the analyte in document order.
func locateAll(lines []string, ca compiledAnalyte) []Reading {
	var readings []Reading
	for _, line := range lines {
		if r, ok := readLine(line, ca); ok {
			readings = append(readings, r)
		}
	}
	return readings
}

func readLine(line string, ca compiledAnalyte) (Reading, bool) {
	if lineExcluded(line, ca.excludes) {
		return Reading{}, false
	}
	for _, re := range ca.patterns {
		loc := re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		if r, ok := parseReading(ca.def, line, line[loc[2]:loc[3]], line[loc[3]:]); ok {
			return r, true
		}
	}
	return Reading{}, false
}

func lineExcluded(line string, excludes []string) bool {
	if len(excludes) == 0 {
		return false
	}
	folded := foldText(line)
	for _, ex := range excludes {
		if strings.Contains(folded, ex) {
			return true
		}
	}
	return false
}

func parseReading(def AnalyteDefinition, line, alias, rest string) (Reading, bool) {
	numLoc := numberRe.FindStringIndex(rest)
	if numLoc == nil {
		return Reading{}, false
	}
	value, ok := parseNumber(rest[numLoc[0]:numLoc[1]])
	if !ok {
		return Reading{}, false
	}

	afterValue := rest[numLoc[1]:]
	r := Reading{
		Key:   def.Key,
		Alias: alias,
		Value: value,
		Line:  line,
	}

	if m := unitRe.FindStringSubmatch(afterValue); m != nil {
		r.Unit = m[1]
	}

	if m := parenRe.FindStringSubmatch(afterValue); m != nil {
		r.Reference = strings.TrimSpace(m[1])
		r.Low, r.High = ParseReferenceRange(r.Reference)
	}
	// An unreadable range such as "(voir commentaire)" counts as no range.
	if r.Low == nil && r.High == nil {
		r.Low, r.High = def.Low, def.High
		r.Reference = FormatReference(def.Low, def.High)
	}

	return r, true
}

// ParseReferenceRange understands "< N", "> N" and "N - M". Anything else
// yields (nil, nil).
func ParseReferenceRange(ref string) (low, high *float64) {
	s := strings.TrimSpace(ref)

	if m := rangeBetweenRe.FindStringSubmatch(s); m != nil {
		lo, okLo := parseNumber(m[1])
		hi, okHi := parseNumber(m[2])
		if okLo && okHi {
			return &lo, &hi
		}
		return nil, nil
	}
	if m := rangeBelowRe.FindStringSubmatch(s); m != nil {
		if hi, ok := parseNumber(m[1]); ok {
			return nil, &hi
		}
		return nil, nil
	}
	if m := rangeAboveRe.FindStringSubmatch(s); m != nil {
		if lo, ok := parseNumber(m[1]); ok {
			return &lo, nil
		}
	}
	return nil, nil
}

// FormatReference renders bounds the way the range parser reads them back.
func FormatReference(low, high *float64) string {
	switch {
	case low != nil && high != nil:
		return formatNumber(*low) + " - " + formatNumber(*high)
	case high != nil:
		return "< " + formatNumber(*high)
	case low != nil:
		return "> " + formatNumber(*low)
	default:
		return ""
	}
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
