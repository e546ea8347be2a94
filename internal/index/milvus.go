package index

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	milvusindex "github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	milvusVectorField   = "embedding"
	milvusMetadataField = "metadata"
	milvusIDMaxLen      = 64
	milvusTextMaxLen    = 65535
	milvusOriginMaxLen  = 1024
	milvusMetaMaxLen    = 8192
)

// MilvusConfig holds connection parameters for a Milvus instance.
type MilvusConfig struct {
	// Address is the Milvus gRPC endpoint (default: localhost:19530).
	Address string

	// Username and Password authenticate against secured deployments.
	Username string
	Password string

	// Database selects a non-default Milvus database.
	Database string

	// Collection is the collection name to use.
	Collection string

	// VectorSize is the dimensionality of the stored embeddings.
	VectorSize int

	// ConnectTimeout bounds the initial connection (default: 10s).
	ConnectTimeout time.Duration
}

// MilvusIndex implements Client backed by a Milvus collection with a
// VarChar primary key and a cosine IVF_FLAT index.
type MilvusIndex struct {
	client *milvusclient.Client
	cfg    *MilvusConfig
}

// NewMilvusIndex connects to Milvus and ensures the collection exists and is
// loaded.
func NewMilvusIndex(ctx context.Context, cfg *MilvusConfig) (*MilvusIndex, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:19530"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("milvus: collection name is required")
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("milvus: vector size must be positive")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	c, err := milvusclient.New(connectCtx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("milvus: failed to connect: %w", err)
	}

	idx := &MilvusIndex{client: c, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates, indexes, and loads the collection when missing.
func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	name := m.cfg.Collection
	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("milvus: failed to check collection existence: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("flarerag knowledge chunks").
			WithAutoID(false).
			WithField(entity.NewField().WithName(fieldChunkID).WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(milvusIDMaxLen).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(milvusVectorField).WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(m.cfg.VectorSize))).
			WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(milvusTextMaxLen)).
			WithField(entity.NewField().WithName(fieldOrigin).WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(milvusOriginMaxLen)).
			WithField(entity.NewField().WithName(fieldPosition).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldSpanStart).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldSpanEnd).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(milvusMetadataField).WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(milvusMetaMaxLen))

		if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
			return fmt.Errorf("milvus: failed to create collection %q: %w", name, err)
		}

		idxTask, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, milvusVectorField,
			milvusindex.NewIvfFlatIndex(entity.COSINE, 128)))
		if err != nil {
			return fmt.Errorf("milvus: failed to create index: %w", err)
		}
		if err := idxTask.Await(ctx); err != nil {
			return fmt.Errorf("milvus: failed to wait for index creation: %w", err)
		}
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("milvus: failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("milvus: failed to wait for collection loading: %w", err)
	}
	return nil
}

// Upsert writes points column-wise. Milvus replaces rows with an existing
// primary key.
func (m *MilvusIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	var (
		ids       = make([]string, len(points))
		vectors   = make([][]float32, len(points))
		texts     = make([]string, len(points))
		origins   = make([]string, len(points))
		positions = make([]int64, len(points))
		starts    = make([]int64, len(points))
		ends      = make([]int64, len(points))
		metas     = make([]string, len(points))
	)
	for i, p := range points {
		if len(p.Vector) != m.cfg.VectorSize {
			return fmt.Errorf("milvus: vector for %s has %d dims, want %d", p.Chunk.ID, len(p.Vector), m.cfg.VectorSize)
		}
		meta, err := json.Marshal(p.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("milvus: marshal metadata for %s: %w", p.Chunk.ID, err)
		}
		ids[i] = p.Chunk.ID
		vectors[i] = p.Vector
		texts[i] = p.Chunk.Text
		origins[i] = p.Chunk.Origin
		positions[i] = int64(p.Chunk.Position)
		starts[i] = int64(p.Chunk.Span.Start)
		ends[i] = int64(p.Chunk.Span.End)
		metas[i] = string(meta)
	}

	_, err := m.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(m.cfg.Collection,
		column.NewColumnVarChar(fieldChunkID, ids),
		column.NewColumnFloatVector(milvusVectorField, m.cfg.VectorSize, vectors),
		column.NewColumnVarChar(fieldText, texts),
		column.NewColumnVarChar(fieldOrigin, origins),
		column.NewColumnInt64(fieldPosition, positions),
		column.NewColumnInt64(fieldSpanStart, starts),
		column.NewColumnInt64(fieldSpanEnd, ends),
		column.NewColumnVarChar(milvusMetadataField, metas),
	))
	if err != nil {
		return fmt.Errorf("milvus: upsert failed: %w", err)
	}
	return nil
}

// Search runs an ANN query on the embedding field and returns up to k hits.
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	results, err := m.client.Search(ctx, milvusclient.NewSearchOption(
		m.cfg.Collection,
		k,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(milvusVectorField).
		WithSearchParam("nprobe", "16").
		WithOutputFields(fieldText, fieldOrigin, fieldPosition, fieldSpanStart, fieldSpanEnd, milvusMetadataField))
	if err != nil {
		return nil, fmt.Errorf("milvus: search failed: %w", err)
	}
	if len(results) == 0 {
		return []Hit{}, nil
	}

	rs := results[0]
	idCol, _ := rs.IDs.(*column.ColumnVarChar)
	hits := make([]Hit, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		flat := make(map[string]any)
		var meta string
		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				if col.Name() == milvusMetadataField {
					meta = col.Data()[i]
					continue
				}
				flat[col.Name()] = col.Data()[i]
			case *column.ColumnInt64:
				flat[col.Name()] = col.Data()[i]
			}
		}

		var id string
		if idCol != nil {
			id = idCol.Data()[i]
		}
		chunk := chunkFromFlat(id, flat)
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("milvus: decode metadata for %s: %w", id, err)
			}
		}
		hits = append(hits, Hit{Chunk: chunk, Score: rs.Scores[i]})
	}
	return hits, nil
}

// Reset drops and recreates the collection.
func (m *MilvusIndex) Reset(ctx context.Context) error {
	if err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(m.cfg.Collection)); err != nil {
		return fmt.Errorf("milvus: failed to drop collection: %w", err)
	}
	return m.ensureCollection(ctx)
}

// Ping checks that the server answers a metadata request.
func (m *MilvusIndex) Ping(ctx context.Context) error {
	if _, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.cfg.Collection)); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Name returns the dependency label used in readiness responses.
func (m *MilvusIndex) Name() string { return "milvus" }

// Close closes the Milvus connection.
func (m *MilvusIndex) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Close(ctx)
}
