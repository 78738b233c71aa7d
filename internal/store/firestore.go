package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const analysesCollection = "labAnalyses"

// FirestoreStore implements the Store interface using Firestore
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// applyCursorPagination adds OrderBy + StartAfter + Limit to a query for cursor-based pagination.
// It fetches pageSize+1 docs so the caller can detect whether a next page exists.
func applyCursorPagination(query firestore.Query, pageSize int32, pageToken string) (firestore.Query, error) {
	query = query.OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return query, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.StartAfter(docID)
	}

	return query.Limit(int(pageSize) + 1), nil
}

// CreateAnalysis stores the record under its ID. Create fails if the ID is taken.
func (s *FirestoreStore) CreateAnalysis(ctx context.Context, record *AnalysisRecord) error {
	prepareRecord(record, time.Now())
	if _, err := s.client.Collection(analysesCollection).Doc(record.ID).Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	doc, err := s.client.Collection(analysesCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	var record AnalysisRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return &record, nil
}

func (s *FirestoreStore) ListAnalyses(ctx context.Context, demandeID string, pageSize int32, pageToken string) ([]*AnalysisRecord, string, error) {
	pageSize = normalizePageSize(pageSize)

	query := s.client.Collection(analysesCollection).Query
	// Field names follow the Go struct fields, as Firestore serializes them.
	if demandeID != "" {
		query = query.Where("DemandeID", "==", demandeID)
	}

	query, err := applyCursorPagination(query, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list analyses: %w", err)
	}

	var nextPageToken string
	if len(docs) > int(pageSize) {
		docs = docs[:pageSize]
		nextPageToken = EncodePageToken(docs[pageSize-1].Ref.ID)
	}

	records := make([]*AnalysisRecord, 0, len(docs))
	for _, doc := range docs {
		var record AnalysisRecord
		if err := doc.DataTo(&record); err != nil {
			return nil, "", fmt.Errorf("failed to parse analysis: %w", err)
		}
		records = append(records, &record)
	}
	return records, nextPageToken, nil
}
