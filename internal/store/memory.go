package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with in-memory storage. Used for local runs
// and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	analyses map[string]*AnalysisRecord
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		analyses: make(map[string]*AnalysisRecord),
		now:      time.Now,
	}
}

// paginateIDs applies cursor-based pagination to a slice of IDs.
// Returns the page and the next page token (empty if no more pages).
func paginateIDs(ids []string, pageSize int32, pageToken string) ([]string, string, error) {
	pageSize = normalizePageSize(pageSize)
	sort.Strings(ids)

	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		start := sort.SearchStrings(ids, cursorID)
		if start < len(ids) && ids[start] == cursorID {
			start++
		}
		ids = ids[start:]
	}

	var nextToken string
	if int32(len(ids)) > pageSize {
		ids = ids[:pageSize]
		nextToken = EncodePageToken(ids[pageSize-1])
	}
	return ids, nextToken, nil
}

func (m *MemoryStore) CreateAnalysis(ctx context.Context, record *AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareRecord(record, m.now())
	if _, exists := m.analyses[record.ID]; exists {
		return fmt.Errorf("analysis %s already exists", record.ID)
	}
	copied := *record
	m.analyses[record.ID] = &copied
	return nil
}

func (m *MemoryStore) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.analyses[id]
	if !ok {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	copied := *record
	return &copied, nil
}

func (m *MemoryStore) ListAnalyses(ctx context.Context, demandeID string, pageSize int32, pageToken string) ([]*AnalysisRecord, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matchingIDs []string
	for id, record := range m.analyses {
		if demandeID != "" && record.DemandeID != demandeID {
			continue
		}
		matchingIDs = append(matchingIDs, id)
	}

	pageIDs, nextToken, err := paginateIDs(matchingIDs, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}
	result := make([]*AnalysisRecord, 0, len(pageIDs))
	for _, id := range pageIDs {
		copied := *m.analyses[id]
		result = append(result, &copied)
	}
	return result, nextToken, nil
}
