package search

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"

	"github.com/medisphere/labrisk/internal/labanalysis"
	"github.com/medisphere/labrisk/internal/store"
)

// Config holds Algolia configuration.
type Config struct {
	AppID     string
	APIKey    string // needs addObject for indexing
	IndexName string
}

// SearchParams defines the input for an Algolia search.
type SearchParams struct {
	Query     string
	DemandeID string
	// Level restricts hits to one danger level when set.
	Level    *labanalysis.Level
	MinScore int
	// Pagination (offset-based)
	Page     int
	PageSize int
}

// Hit is one analysis returned by a search.
type Hit struct {
	ID          string            `json:"id"`
	DemandeID   string            `json:"demande_id"`
	TypeBilan   string            `json:"type_bilan,omitempty"`
	DangerLevel labanalysis.Level `json:"danger_level"`
	DangerScore int               `json:"danger_score"`
	Anomalies   []string          `json:"anomalies"`
	DoctorName  string            `json:"doctor_name,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// SearchResponse holds results from Algolia.
type SearchResponse struct {
	Results    []Hit `json:"results"`
	TotalCount int   `json:"total_count"`
	TotalPages int   `json:"total_pages"`
	Page       int   `json:"page"`
}

// AlgoliaClient wraps the Algolia search API client.
type AlgoliaClient struct {
	client    *search.APIClient
	indexName string
	retry     RetryConfig
}

// NewAlgoliaClient creates a new Algolia search client.
func NewAlgoliaClient(cfg Config) (*AlgoliaClient, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("algolia AppID and APIKey are required")
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "lab_analyses"
	}

	client, err := search.NewClient(cfg.AppID, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("creating algolia client: %w", err)
	}

	return &AlgoliaClient{
		client:    client,
		indexName: cfg.IndexName,
		retry:     DefaultIndexRetryConfig,
	}, nil
}

// IndexAnalysis upserts the searchable projection of a record.
func (c *AlgoliaClient) IndexAnalysis(ctx context.Context, record *store.AnalysisRecord) error {
	req := c.client.NewApiSaveObjectRequest(c.indexName, recordToObject(record))
	taskID, err := withRetry(ctx, c.retry, func(ctx context.Context) (int64, error) {
		resp, err := c.client.SaveObject(req)
		if err != nil {
			return 0, err
		}
		return resp.TaskID, nil
	})
	if err != nil {
		return fmt.Errorf("algolia save object: %w", err)
	}
	log.Printf("[search] indexed analysis %s (task %d)", record.ID, taskID)
	return nil
}

// Search performs a full-text search via Algolia.
func (c *AlgoliaClient) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 100 {
		pageSize = 100
	}

	page := params.Page
	if page < 0 {
		page = 0
	}

	searchParams := search.SearchParamsObjectAsSearchParams(
		search.NewSearchParamsObject().
			SetQuery(params.Query).
			SetHitsPerPage(int32(pageSize)).
			SetPage(int32(page)).
			SetFilters(buildFilters(params)),
	)

	resp, err := c.client.SearchSingleIndex(c.client.NewApiSearchSingleIndexRequest(c.indexName).WithSearchParams(searchParams))
	if err != nil {
		return nil, fmt.Errorf("algolia search: %w", err)
	}

	results := make([]Hit, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if h, ok := objectToHit(hit.AdditionalProperties); ok {
			results = append(results, h)
		}
	}

	out := &SearchResponse{Results: results, Page: page}
	if resp.NbHits != nil {
		out.TotalCount = int(*resp.NbHits)
	}
	if resp.NbPages != nil {
		out.TotalPages = int(*resp.NbPages)
	}
	return out, nil
}

// recordToObject is the index projection. Patient identity is never indexed.
func recordToObject(r *store.AnalysisRecord) map[string]any {
	names := r.Result.AnomalyNames()
	if names == nil {
		names = []string{}
	}
	return map[string]any{
		"objectID":      r.ID,
		"DemandeId":     r.DemandeID,
		"TypeBilan":     r.TypeBilan,
		"DangerLevel":   r.Result.DangerLevel.String(),
		"DangerScore":   r.Result.DangerScore,
		"Anomalies":     names,
		"Resume":        r.Result.Resume,
		"DoctorName":    r.DoctorName,
		"CreatedAtUnix": r.CreatedAt.Unix(),
	}
}

// buildFilters constructs Algolia filter string from search params.
func buildFilters(params SearchParams) string {
	var parts []string

	if params.DemandeID != "" {
		parts = append(parts, fmt.Sprintf("DemandeId:%q", params.DemandeID))
	}
	if params.Level != nil {
		parts = append(parts, fmt.Sprintf("DangerLevel:%q", params.Level.String()))
	}
	if params.MinScore > 0 {
		parts = append(parts, fmt.Sprintf("DangerScore >= %d", params.MinScore))
	}

	return strings.Join(parts, " AND ")
}

// objectToHit converts an Algolia hit to a Hit.
func objectToHit(props map[string]any) (Hit, bool) {
	var h Hit

	if v, ok := props["objectID"].(string); ok {
		h.ID = v
	}
	if h.ID == "" {
		log.Printf("[search] skipping hit with no objectID")
		return Hit{}, false
	}

	h.DemandeID, _ = props["DemandeId"].(string)
	h.TypeBilan, _ = props["TypeBilan"].(string)
	h.DoctorName, _ = props["DoctorName"].(string)
	if v, ok := props["DangerLevel"].(string); ok {
		h.DangerLevel, _ = labanalysis.ParseLevel(v)
	}
	// JSON numbers decode as float64.
	if v, ok := props["DangerScore"].(float64); ok {
		h.DangerScore = int(v)
	}
	if v, ok := props["CreatedAtUnix"].(float64); ok && v > 0 {
		h.CreatedAt = time.Unix(int64(v), 0).UTC()
	}
	h.Anomalies = []string{}
	if list, ok := props["Anomalies"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				h.Anomalies = append(h.Anomalies, s)
			}
		}
	}
	return h, true
}
