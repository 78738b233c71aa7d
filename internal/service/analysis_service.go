package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/medisphere/labrisk/internal/archive"
	"github.com/medisphere/labrisk/internal/labanalysis"
	"github.com/medisphere/labrisk/internal/search"
	"github.com/medisphere/labrisk/internal/store"
)

// MaxUploadBytes caps the size of an uploaded lab report.
const MaxUploadBytes = 20 << 20

// multipart overhead allowed on top of the file itself
const formOverheadBytes = 1 << 20

// Analyzer runs the lab-analysis pipeline on a PDF.
type Analyzer interface {
	AnalyzePDF(ctx context.Context, pdf []byte, rc labanalysis.RequestContext) labanalysis.AnalysisResult
	Provider() string
}

// SearchIndex indexes and searches analysis records.
type SearchIndex interface {
	IndexAnalysis(ctx context.Context, record *store.AnalysisRecord) error
	Search(ctx context.Context, params search.SearchParams) (*search.SearchResponse, error)
}

// Notifier tells the requesting doctor about a finished analysis. It never fails.
type Notifier interface {
	Notify(ctx context.Context, record *store.AnalysisRecord)
}

// AnalysisService serves the lab-analysis HTTP API.
type AnalysisService struct {
	analyzer Analyzer
	store    store.Store
	archive  archive.Archive
	index    SearchIndex
	notifier Notifier
}

// NewAnalysisService creates the service. Archive, search and notifications
// are optional and set separately.
func NewAnalysisService(analyzer Analyzer, s store.Store) *AnalysisService {
	return &AnalysisService{analyzer: analyzer, store: s}
}

// SetArchive sets where source documents are kept.
func (s *AnalysisService) SetArchive(a archive.Archive) {
	s.archive = a
}

// SetSearchIndex enables indexing and the search endpoint.
func (s *AnalysisService) SetSearchIndex(idx SearchIndex) {
	s.index = idx
}

// SetNotifier sets the doctor notifier.
func (s *AnalysisService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Register adds the API routes to mux.
func (s *AnalysisService) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/analyses", s.CreateAnalysis)
	mux.HandleFunc("GET /v1/analyses", s.ListAnalyses)
	mux.HandleFunc("GET /v1/analyses/search", s.SearchAnalyses)
	mux.HandleFunc("GET /v1/analyses/{id}", s.GetAnalysis)
	mux.HandleFunc("GET /v1/analyses/{id}/document", s.GetDocument)
	mux.HandleFunc("GET /health", s.Health)
}

// CreateAnalysis analyzes an uploaded PDF and stores the result.
func (s *AnalysisService) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+formOverheadBytes)

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form")
		return
	}

	demandeID := strings.TrimSpace(r.FormValue("demande_id"))
	if demandeID == "" {
		writeError(w, http.StatusBadRequest, "demande_id is required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}
	if len(data) > MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "document exceeds the upload limit")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	record := &store.AnalysisRecord{
		ID:              store.NewRecordID(),
		DemandeID:       demandeID,
		TypeBilan:       formValue(r, "type_bilan"),
		PatientName:     formValue(r, "patient_name"),
		PatientAge:      formValue(r, "patient_age"),
		PatientSex:      formValue(r, "patient_sex"),
		DoctorName:      formValue(r, "doctor_name"),
		DoctorSpecialty: formValue(r, "doctor_specialty"),
		DoctorEmail:     formValue(r, "doctor_email"),
		DoctorPushToken: formValue(r, "doctor_push_token"),
		Provider:        s.analyzer.Provider(),
	}
	record.Result = s.analyzer.AnalyzePDF(ctx, data, record.RequestContext())

	if s.archive != nil {
		path, err := s.archive.Put(ctx, archive.DocumentKey(record.DemandeID, record.ID), data, "application/pdf")
		if err != nil {
			log.Printf("[archive] failed to archive document for analysis %s: %v", record.ID, err)
		} else {
			record.DocumentPath = path
		}
	}

	if err := s.store.CreateAnalysis(ctx, record); err != nil {
		log.Printf("[store] failed to save analysis %s: %v", record.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to save analysis")
		return
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, record)
	}
	if s.index != nil {
		if err := s.index.IndexAnalysis(ctx, record); err != nil {
			log.Printf("[search] failed to index analysis %s: %v", record.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, record)
}

// GetAnalysis returns one stored analysis.
func (s *AnalysisService) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	record, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// GetDocument streams the archived source PDF of an analysis.
func (s *AnalysisService) GetDocument(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "document archive is not configured")
		return
	}
	record, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	if record.DocumentPath == "" {
		writeError(w, http.StatusNotFound, "no archived document for this analysis")
		return
	}

	data, err := s.archive.Get(r.Context(), archive.DocumentKey(record.DemandeID, record.ID))
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no archived document for this analysis")
			return
		}
		log.Printf("[archive] failed to read document for analysis %s: %v", record.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to read document")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", record.ID+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type listResponse struct {
	Analyses      []*store.AnalysisRecord `json:"analyses"`
	NextPageToken string                  `json:"next_page_token,omitempty"`
}

// ListAnalyses pages through stored analyses, optionally for one demande.
func (s *AnalysisService) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageSize, err := optionalInt(q.Get("page_size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page_size must be an integer")
		return
	}
	pageToken := q.Get("page_token")
	if _, err := store.DecodePageToken(pageToken); err != nil {
		writeError(w, http.StatusBadRequest, "invalid page_token")
		return
	}

	records, next, err := s.store.ListAnalyses(r.Context(), q.Get("demande_id"), int32(pageSize), pageToken)
	if err != nil {
		log.Printf("[store] failed to list analyses: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	if records == nil {
		records = []*store.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Analyses: records, NextPageToken: next})
}

// SearchAnalyses runs a full-text search over indexed analyses.
func (s *AnalysisService) SearchAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	q := r.URL.Query()
	params := search.SearchParams{
		Query:     q.Get("q"),
		DemandeID: q.Get("demande_id"),
	}
	if raw := q.Get("level"); raw != "" {
		level, ok := labanalysis.ParseLevel(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown level")
			return
		}
		params.Level = &level
	}

	var err error
	if params.MinScore, err = optionalInt(q.Get("min_score")); err != nil {
		writeError(w, http.StatusBadRequest, "min_score must be an integer")
		return
	}
	if params.Page, err = optionalInt(q.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	if params.PageSize, err = optionalInt(q.Get("page_size")); err != nil {
		writeError(w, http.StatusBadRequest, "page_size must be an integer")
		return
	}

	resp, err := s.index.Search(r.Context(), params)
	if err != nil {
		log.Printf("[search] query failed: %v", err)
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports liveness and the active analysis provider.
func (s *AnalysisService) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": s.analyzer.Provider(),
	})
}

func (s *AnalysisService) loadRecord(w http.ResponseWriter, r *http.Request) (*store.AnalysisRecord, bool) {
	id := r.PathValue("id")
	record, err := s.store.GetAnalysis(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "analysis not found")
			return nil, false
		}
		log.Printf("[store] failed to get analysis %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get analysis")
		return nil, false
	}
	return record, true
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
