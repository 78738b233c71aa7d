package eval

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed fixtures/*.txt fixtures/*.json
var fixtureFS embed.FS

// Fixture bundles report text (as produced by text extraction) with its annotation.
type Fixture struct {
	Name        string
	Text        string
	GroundTruth *GroundTruth
}

var fixtureNames = []string{
	"normal_checkup",
	"hepatic_cytolysis",
	"diabetic_followup",
	"renal_electrolytes",
}

// LoadFixtures loads all embedded fixture pairs (txt + json).
func LoadFixtures() ([]*Fixture, error) {
	fixtures := make([]*Fixture, 0, len(fixtureNames))
	for _, name := range fixtureNames {
		f, err := loadFixture(name)
		if err != nil {
			return nil, fmt.Errorf("load fixture %q: %w", name, err)
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

func loadFixture(name string) (*Fixture, error) {
	text, err := fixtureFS.ReadFile("fixtures/" + name + ".txt")
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	raw, err := fixtureFS.ReadFile("fixtures/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("read ground truth: %w", err)
	}

	var gt GroundTruth
	if err := json.Unmarshal(raw, &gt); err != nil {
		return nil, fmt.Errorf("parse ground truth: %w", err)
	}
	return &Fixture{Name: name, Text: string(text), GroundTruth: &gt}, nil
}
