package store

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medisphere/labrisk/internal/labanalysis"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultPageSize applies when a list call asks for zero or fewer records.
const DefaultPageSize = 50

// MaxPageSize caps a single list page.
const MaxPageSize = 200

// AnalysisRecord is one persisted analysis of a lab-result document, together
// with the demande context it was requested for.
type AnalysisRecord struct {
	ID              string                     `json:"id"`
	DemandeID       string                     `json:"demande_id"`
	TypeBilan       string                     `json:"type_bilan,omitempty"`
	PatientName     string                     `json:"patient_name,omitempty"`
	PatientAge      string                     `json:"patient_age,omitempty"`
	PatientSex      string                     `json:"patient_sex,omitempty"`
	DoctorName      string                     `json:"doctor_name,omitempty"`
	DoctorSpecialty string                     `json:"doctor_specialty,omitempty"`
	DoctorEmail     string                     `json:"doctor_email,omitempty"`
	DoctorPushToken string                     `json:"-"`
	Provider        string                     `json:"provider"`
	DocumentPath    string                     `json:"document_path,omitempty"`
	Result          labanalysis.AnalysisResult `json:"result"`
	CreatedAt       time.Time                  `json:"created_at"`
}

// RequestContext rebuilds the analysis context the record was created with.
func (r *AnalysisRecord) RequestContext() labanalysis.RequestContext {
	return labanalysis.RequestContext{
		ID:              r.DemandeID,
		TypeBilan:       r.TypeBilan,
		PatientName:     r.PatientName,
		PatientAge:      r.PatientAge,
		PatientSex:      r.PatientSex,
		DoctorName:      r.DoctorName,
		DoctorSpecialty: r.DoctorSpecialty,
	}
}

// Store defines the persistence operations used by the HTTP service.
type Store interface {
	// CreateAnalysis saves a new record, assigning ID and CreatedAt when empty.
	CreateAnalysis(ctx context.Context, record *AnalysisRecord) error
	GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error)
	// ListAnalyses returns records in ID order, optionally restricted to one
	// demande, with the token of the next page ("" on the last page).
	ListAnalyses(ctx context.Context, demandeID string, pageSize int32, pageToken string) ([]*AnalysisRecord, string, error)
}

// NewRecordID returns a time-ordered ID so that ID order follows creation order.
func NewRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// prepareRecord fills the generated fields of a record about to be created.
func prepareRecord(record *AnalysisRecord, now time.Time) {
	if record.ID == "" {
		record.ID = NewRecordID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now.UTC()
	}
}

func normalizePageSize(pageSize int32) int32 {
	switch {
	case pageSize <= 0:
		return DefaultPageSize
	case pageSize > MaxPageSize:
		return MaxPageSize
	default:
		return pageSize
	}
}

// EncodePageToken encodes a document ID into a page token.
func EncodePageToken(docID string) string {
	if docID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes a page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
