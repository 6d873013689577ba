package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/helixml/taxon/domain/document"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/search"
)

// ErrReplaceVerification indicates the post-replace chunk count did not
// match the new chunk set.
var ErrReplaceVerification = errors.New("replace verification failed")

// ChunkMatch is a stored chunk ranked against a query vector.
type ChunkMatch struct {
	chunk document.Chunk
	score float64
}

// NewChunkMatch creates a ChunkMatch.
func NewChunkMatch(chunk document.Chunk, score float64) ChunkMatch {
	return ChunkMatch{chunk: chunk, score: score}
}

// Chunk returns the matched chunk.
func (m ChunkMatch) Chunk() document.Chunk { return m.chunk }

// Score returns the cosine similarity to the query.
func (m ChunkMatch) Score() float64 { return m.score }

// VectorIndex stores chunk vectors and replaces them one file at a time.
type VectorIndex struct {
	store      search.VectorStore
	logger     *slog.Logger
	generation func() string
}

// NewVectorIndex creates a VectorIndex over the chunks collection.
func NewVectorIndex(store search.VectorStore, logger *slog.Logger) *VectorIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorIndex{
		store:      store,
		logger:     logger,
		generation: func() string { return uuid.NewString()[:8] },
	}
}

// ReplaceFile swaps every stored chunk of file for chunks. Either the new
// set is fully stored or the old set remains; the result is verified by
// counting.
func (x *VectorIndex) ReplaceFile(ctx context.Context, file string, chunks []document.Chunk) error {
	if err := document.ValidateSet(file, chunks); err != nil {
		return fmt.Errorf("validate chunks: %w", err)
	}

	gen := x.generation()
	records := make([]search.Record, len(chunks))
	for i, c := range chunks {
		meta, err := search.NewMetadata(map[string]any{
			search.MetaSourceFile:  file,
			search.MetaChunkIndex:  c.Index(),
			search.MetaTotalChunks: c.Total(),
			search.MetaTags:        c.Tags(),
			search.MetaGeneration:  gen,
		})
		if err != nil {
			return fmt.Errorf("chunk %d metadata: %w", c.Index(), err)
		}
		records[i] = search.NewRecord(c.ID()+"@"+gen, c.Text(), c.Vector(), meta)
	}

	if replacer, ok := x.store.(search.Replacer); ok {
		if err := replacer.Replace(ctx, search.BySourceFile(file), records); err != nil {
			return fmt.Errorf("replace chunks: %w", err)
		}
	} else if err := x.swapGeneration(ctx, file, gen, records); err != nil {
		return err
	}

	count, err := x.store.Count(ctx, search.BySourceFile(file))
	if err != nil {
		return fmt.Errorf("verify chunks: %w", err)
	}
	if count != len(chunks) {
		return fmt.Errorf("%w: %s has %d chunks stored, want %d", ErrReplaceVerification, file, count, len(chunks))
	}
	return nil
}

// swapGeneration writes the new generation, then deletes older ones. A
// failed write removes the partial new generation so the old set remains.
func (x *VectorIndex) swapGeneration(ctx context.Context, file, gen string, records []search.Record) error {
	current := search.BySourceFile(file).Where(search.MetaGeneration, gen)
	rollback := func(cause error) error {
		if err := x.store.Delete(ctx, current); err != nil {
			x.logger.Error("rollback of new chunk generation failed",
				slog.String("file", file),
				slog.String("generation", gen),
				slog.String("error", err.Error()),
			)
			return errors.Join(cause, fmt.Errorf("rollback: %w", err))
		}
		return cause
	}

	if err := x.store.Upsert(ctx, records); err != nil {
		return rollback(fmt.Errorf("upsert chunks: %w", err))
	}
	if err := x.store.Delete(ctx, search.BySourceFile(file).WhereNot(search.MetaGeneration, gen)); err != nil {
		return rollback(fmt.Errorf("delete old chunks: %w", err))
	}
	return nil
}

// DeleteFile removes every chunk of file.
func (x *VectorIndex) DeleteFile(ctx context.Context, file string) error {
	if err := x.store.Delete(ctx, search.BySourceFile(file)); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// Clear removes every chunk.
func (x *VectorIndex) Clear(ctx context.Context) error {
	if err := x.store.Delete(ctx, search.NewFilter()); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks for file.
func (x *VectorIndex) Count(ctx context.Context, file string) (int, error) {
	return x.store.Count(ctx, search.BySourceFile(file))
}

// Chunks returns file's live chunks ordered by index.
func (x *VectorIndex) Chunks(ctx context.Context, file string) ([]document.Chunk, error) {
	records, err := x.store.Get(ctx, search.BySourceFile(file))
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	chunks := make([]document.Chunk, 0, len(records))
	for _, r := range records {
		c, err := toChunk(r)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index() < chunks[j].Index() })
	return chunks, nil
}

// RepresentativeVector returns the mean of file's chunk vectors. ok is
// false when the file has no chunks.
func (x *VectorIndex) RepresentativeVector(ctx context.Context, file string) ([]float64, bool, error) {
	records, err := x.store.Get(ctx, search.BySourceFile(file))
	if err != nil {
		return nil, false, fmt.Errorf("get chunks: %w", err)
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	vectors := make([][]float64, len(records))
	for i, r := range records {
		vectors[i] = r.Vector()
	}
	mean, err := search.Mean(vectors)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w: %w", file, pipeline.ErrIntegrity, err)
	}
	return mean, true, nil
}

// Search ranks stored chunks by similarity to vector. Chunks whose stored
// metadata cannot be decoded are skipped.
func (x *VectorIndex) Search(ctx context.Context, vector []float64, k int, filter search.Filter) ([]ChunkMatch, error) {
	matches, err := x.store.Query(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	result := make([]ChunkMatch, 0, len(matches))
	for _, m := range matches {
		c, err := toChunk(m.Record())
		if err != nil {
			x.logger.Warn("skipping chunk with malformed metadata",
				slog.String("id", m.Record().ID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		result = append(result, NewChunkMatch(c, m.Score()))
	}
	return result, nil
}

func toChunk(r search.Record) (document.Chunk, error) {
	meta := r.Metadata()
	index, err := meta.Int(search.MetaChunkIndex)
	if err != nil {
		return document.Chunk{}, fmt.Errorf("%w: record %s: %w", pipeline.ErrIntegrity, r.ID(), err)
	}
	total, err := strconv.Atoi(meta.Get(search.MetaTotalChunks))
	if err != nil {
		return document.Chunk{}, fmt.Errorf("%w: record %s: total_chunks: %w", pipeline.ErrIntegrity, r.ID(), err)
	}
	c := document.NewChunk(meta.Get(search.MetaSourceFile), index, total, r.Text(), meta.List(search.MetaTags))
	return c.WithVector(r.Vector()), nil
}
