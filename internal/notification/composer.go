// Package notification tells the requesting doctor about a finished analysis.
package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/medisphere/labrisk/internal/labanalysis"
	"github.com/medisphere/labrisk/internal/store"
)

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

var htmlTemplate = template.Must(template.New("analysis").Parse(`<!DOCTYPE html>
<html><body>
<h2 style="color:{{.Color}}">Danger level: {{.Level}} ({{.Score}}/100)</h2>
<p>Demande {{.DemandeID}}{{if .TypeBilan}} &middot; {{.TypeBilan}}{{end}}</p>
{{if .Anomalies}}<ul>
{{range .Anomalies}}<li><strong>{{.Name}}</strong> {{.Value}}{{if .Reference}} (ref. {{.Reference}}){{end}} &middot; {{.Severity}}</li>
{{end}}</ul>{{else}}<p>No anomaly detected.</p>{{end}}
<p>{{.Resume}}</p>
<p><em>{{.Caveat}}</em></p>
</body></html>
`))

var levelColors = map[labanalysis.Level]string{
	labanalysis.LevelLow:      "#2e7d32",
	labanalysis.LevelMedium:   "#f9a825",
	labanalysis.LevelHigh:     "#ef6c00",
	labanalysis.LevelCritical: "#c62828",
}

// Compose renders the doctor notification for a record.
func Compose(record *store.AnalysisRecord) (Message, error) {
	r := record.Result
	subject := fmt.Sprintf("[%s] Lab results for demande %s (score %d/100)", r.DangerLevel, record.DemandeID, r.DangerScore)

	var text strings.Builder
	fmt.Fprintf(&text, "Danger level: %s (%d/100)\n", r.DangerLevel, r.DangerScore)
	fmt.Fprintf(&text, "Demande: %s\n", record.DemandeID)
	if record.TypeBilan != "" {
		fmt.Fprintf(&text, "Bilan: %s\n", record.TypeBilan)
	}
	text.WriteString("\n")
	if len(r.Anomalies) == 0 {
		text.WriteString("No anomaly detected.\n")
	}
	for _, a := range r.Anomalies {
		fmt.Fprintf(&text, "- %s %s", a.Name, a.Value)
		if a.Reference != "" {
			fmt.Fprintf(&text, " (ref. %s)", a.Reference)
		}
		fmt.Fprintf(&text, ", %s\n", a.Severity)
	}
	text.WriteString("\n")
	text.WriteString(r.Resume)
	if !strings.Contains(r.Resume, labanalysis.ValidationCaveat) {
		text.WriteString("\n" + labanalysis.ValidationCaveat)
	}
	text.WriteString("\n")

	var html bytes.Buffer
	err := htmlTemplate.Execute(&html, struct {
		Color     string
		Level     labanalysis.Level
		Score     int
		DemandeID string
		TypeBilan string
		Anomalies []labanalysis.Anomaly
		Resume    string
		Caveat    string
	}{
		Color:     levelColors[r.DangerLevel],
		Level:     r.DangerLevel,
		Score:     r.DangerScore,
		DemandeID: record.DemandeID,
		TypeBilan: record.TypeBilan,
		Anomalies: r.Anomalies,
		Resume:    strings.TrimSpace(strings.ReplaceAll(r.Resume, labanalysis.ValidationCaveat, "")),
		Caveat:    labanalysis.ValidationCaveat,
	})
	if err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}

	return Message{Subject: subject, Text: text.String(), HTML: html.String()}, nil
}

// PushTitle and PushBody are the short form used for device notifications.
func PushTitle(record *store.AnalysisRecord) string {
	return fmt.Sprintf("%s lab results: demande %s", record.Result.DangerLevel, record.DemandeID)
}

func PushBody(record *store.AnalysisRecord) string {
	names := record.Result.AnomalyNames()
	if len(names) == 0 {
		return fmt.Sprintf("Score %d/100. No anomaly detected.", record.Result.DangerScore)
	}
	if len(names) > 4 {
		names = append(names[:4:4], fmt.Sprintf("and %d more", len(names)-4))
	}
	return fmt.Sprintf("Score %d/100. %s", record.Result.DangerScore, strings.Join(names, ", "))
}
