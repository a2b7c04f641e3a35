package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
	"alfredoptarigan/cv-eval-pipeline/internal/repositories"
)

const (
	payloadDocType    = "doc_type"
	payloadGeneration = "generation"
	payloadText       = "text"
)

// qdrantStore tags every point with a generation id. Readers only see the
// generation recorded in the snapshot table, so a replace becomes visible in
// one relational update and stale points are deleted afterwards.
type qdrantStore struct {
	client         *qdrant.Client
	snapshots      repositories.SnapshotRepository
	collectionName string
	vectorSize     uint64
	log            *zap.Logger
}

type QdrantOptions struct {
	URL        string
	APIKey     string
	Collection string
	Dimensions int
}

func NewQdrantStore(ctx context.Context, opts QdrantOptions, snapshots repositories.SnapshotRepository, log *zap.Logger) (KnowledgeStore, error) {
	// Parse URL to extract host, port, and TLS usage
	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	// gRPC port unless the URL names one
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   parsed.Hostname(),
		Port:   port,
		APIKey: opts.APIKey,
		UseTLS: parsed.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &qdrantStore{
		client:         client,
		snapshots:      snapshots,
		collectionName: opts.Collection,
		vectorSize:     uint64(opts.Dimensions),
		log:            log,
	}

	if err := store.initCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return store, nil
}

func (q *qdrantStore) initCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		q.log.Info("✅ Qdrant collection already exists", zap.String("collection", q.collectionName))
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	q.log.Info("✅ Qdrant collection created", zap.String("collection", q.collectionName))
	return nil
}

// ReplaceChunks implements KnowledgeStore.
func (q *qdrantStore) ReplaceChunks(ctx context.Context, documentType string, chunks []models.DocumentChunk) error {
	generation := uuid.NewString()

	if len(chunks) > 0 {
		points := make([]*qdrant.PointStruct, 0, len(chunks))
		for _, c := range chunks {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(uuid.NewString()),
				Vectors: qdrant.NewVectors(c.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadDocType:    documentType,
					payloadGeneration: generation,
					payloadText:       c.Content,
				}),
			})
		}

		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert %s points: %w", documentType, err)
		}
	}

	if err := q.snapshots.Activate(ctx, documentType, generation, len(chunks)); err != nil {
		q.deleteWhere(ctx, &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadGeneration, generation)}})
		return fmt.Errorf("failed to activate %s generation: %w", documentType, err)
	}

	// Old generations are unreachable now; removing them is best effort.
	q.deleteWhere(ctx, &qdrant.Filter{
		Must:    []*qdrant.Condition{qdrant.NewMatch(payloadDocType, documentType)},
		MustNot: []*qdrant.Condition{qdrant.NewMatch(payloadGeneration, generation)},
	})

	q.log.Info("📚 Knowledge chunks replaced",
		zap.String("document_type", documentType),
		zap.String("generation", generation),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// Search implements KnowledgeStore.
func (q *qdrantStore) Search(ctx context.Context, embedding []float32, documentTypes []string, limit int) ([]SearchResult, error) {
	generations, err := q.snapshots.ActiveGenerations(ctx, documentTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to load active generations: %w", err)
	}
	if len(generations) == 0 {
		return nil, nil
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeywords(payloadGeneration, generations...)},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()
		results = append(results, SearchResult{
			Content:      payload[payloadText].GetStringValue(),
			DocumentType: payload[payloadDocType].GetStringValue(),
			Score:        float64(point.GetScore()),
		})
	}

	return results, nil
}

func (q *qdrantStore) deleteWhere(ctx context.Context, filter *qdrant.Filter) {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: filter,
			},
		},
	})
	if err != nil {
		q.log.Warn("⚠️ failed to delete stale points", zap.Error(err))
	}
}

func (q *qdrantStore) Close() error {
	return q.client.Close()
}
