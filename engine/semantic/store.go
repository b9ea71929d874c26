// Package semantic is the sole owner of all Qdrant operations. It stores
// document chunks as vectors and answers nearest-neighbour queries for the
// ranking layer.
package semantic

import (
	"context"
	"fmt"

	"github.com/eoralabs/kbase/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore wraps a Qdrant collection holding embedded chunks.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients creates a VectorStore from pre-built clients. Used in tests.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the cosine-metric collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores chunks with their embedding vectors. vectors[i] must be the
// embedding of chunks[i]. Point IDs are derived deterministically from the
// chunk ID so re-ingesting a page overwrites its previous chunks.
func (v *VectorStore) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("semantic: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		pointID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.ChunkID)).String()
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: map[string]*pb.Value{
				"chunk_id":     stringValue(c.ChunkID),
				"content":      stringValue(c.Content),
				"source_url":   stringValue(c.SourceURL),
				"source_title": stringValue(c.SourceTitle),
				"chunk_index":  intValue(c.ChunkIndex),
				"total_chunks": intValue(c.TotalChunks),
				"word_count":   intValue(c.WordCount),
			},
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteBySourceURL removes all chunks of a document. Used for re-ingestion.
func (v *VectorStore) DeleteBySourceURL(ctx context.Context, url string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("source_url", url),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by source_url %s: %w", url, err)
	}
	return nil
}

// Query performs k-NN similarity search and returns results in index order.
// The collection uses the cosine metric, so the reported score is already a
// similarity; a score outside [0,1] violates the index contract and is
// rejected as a domain.IndexError.
func (v *VectorStore) Query(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, &domain.IndexError{Op: "search", Err: err}
	}

	results := make([]domain.SearchResult, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		sim := float64(p.GetScore())
		if sim < 0 || sim > 1 {
			return nil, &domain.IndexError{
				Op:  "search",
				Err: fmt.Errorf("similarity %.4f out of range [0,1]", sim),
			}
		}

		payload := p.GetPayload()
		results[i] = domain.SearchResult{
			ChunkID:         payload["chunk_id"].GetStringValue(),
			Content:         payload["content"].GetStringValue(),
			SimilarityScore: sim,
			Meta: domain.ChunkMeta{
				SourceURL:   payload["source_url"].GetStringValue(),
				SourceTitle: payload["source_title"].GetStringValue(),
				ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
				TotalChunks: int(payload["total_chunks"].GetIntegerValue()),
				WordCount:   int(payload["word_count"].GetIntegerValue()),
			},
		}
	}
	return results, nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(n)}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
