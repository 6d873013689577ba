package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/helixml/taxon/domain/document"
	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/meta"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/domain/search"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/task"
)

// DefaultParallelism bounds concurrent external calls within a phase.
const DefaultParallelism = 4

// DiscoverFunc lists the candidate documents under the documents root.
type DiscoverFunc func(ctx context.Context) ([]string, error)

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithDiscover sets how candidates are found when none are given.
func WithDiscover(fn DiscoverFunc) IndexerOption {
	return func(x *Indexer) { x.discover = fn }
}

// WithIndexParallelism bounds the number of files processed at once.
func WithIndexParallelism(n int) IndexerOption {
	return func(x *Indexer) {
		if n > 0 {
			x.parallelism = n
		}
	}
}

// WithIndexCallPolicy sets the timeout and retries of embedding calls.
func WithIndexCallPolicy(p CallPolicy) IndexerOption {
	return func(x *Indexer) { x.policy = p }
}

// WithIndexMeta records the last indexed revision in store.
func WithIndexMeta(store meta.Store, vcs domainservice.VCS) IndexerOption {
	return func(x *Indexer) {
		x.meta = store
		x.vcs = vcs
	}
}

// WithIndexTrackers reports progress through f.
func WithIndexTrackers(f TrackerFactory) IndexerOption {
	return func(x *Indexer) { x.trackers = trackersOrNoop(f) }
}

// Indexer keeps the chunk collection in step with the documents on disk.
// The change tracker gates which files are loaded, embedded and replaced.
type Indexer struct {
	changes     *domainservice.ChangeTracker
	index       *domainservice.VectorIndex
	ledger      ledger.Store
	loader      document.Loader
	embedder    search.Embedder
	discover    DiscoverFunc
	meta        meta.Store
	vcs         domainservice.VCS
	policy      CallPolicy
	parallelism int
	trackers    TrackerFactory
	logger      *slog.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(
	changes *domainservice.ChangeTracker,
	index *domainservice.VectorIndex,
	ledgerStore ledger.Store,
	loader document.Loader,
	embedder search.Embedder,
	logger *slog.Logger,
	opts ...IndexerOption,
) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Indexer{
		changes:     changes,
		index:       index,
		ledger:      ledgerStore,
		loader:      loader,
		embedder:    embedder,
		policy:      DefaultCallPolicy(),
		parallelism: DefaultParallelism,
		trackers:    NoopTrackers(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Reprocess indexes the given files, or every discovered document when
// files is empty. Unchanged files are skipped by content hash. In discovery
// mode ledger entries for documents that no longer exist are pruned.
func (x *Indexer) Reprocess(ctx context.Context, files []string) pipeline.Result {
	return x.run(ctx, task.OperationReprocess, files)
}

// RebuildIndex wipes the ledger, then the chunk collection, then reindexes
// every discovered document. The ledger goes first: if the run stops
// between the two wipes, the next run reprocesses everything.
func (x *Indexer) RebuildIndex(ctx context.Context) pipeline.Result {
	tally := pipeline.NewTally(task.OperationRebuildIndex)
	if err := x.ledger.DeleteBy(ctx); err != nil {
		return pipeline.Failed(unavailable("wipe ledger", err), tally.Summary())
	}
	if err := x.index.Clear(ctx); err != nil {
		return pipeline.Failed(unavailable("wipe chunks", err), tally.Summary())
	}
	x.logger.Info("index wiped, reprocessing every document")
	return x.run(ctx, task.OperationRebuildIndex, nil)
}

func (x *Indexer) run(ctx context.Context, operation task.Operation, files []string) pipeline.Result {
	tally := pipeline.NewTally(operation)
	tracker := x.trackers.ForOperation(operation)

	if x.embedder == nil {
		finish(ctx, tracker, ErrNoEmbedder)
		return pipeline.Failed(ErrNoEmbedder, tally.Summary())
	}

	discovery := len(files) == 0
	candidates := files
	if discovery {
		if x.discover == nil {
			err := fmt.Errorf("%w: no files given and no discovery configured", pipeline.ErrConfiguration)
			finish(ctx, tracker, err)
			return pipeline.Failed(err, tally.Summary())
		}
		found, err := x.discover(ctx)
		if err != nil {
			err = fmt.Errorf("%w: %w", pipeline.ErrConfiguration, err)
			finish(ctx, tracker, err)
			return pipeline.Failed(err, tally.Summary())
		}
		candidates = found
	}
	candidates = dedupe(candidates)
	tally.Set(pipeline.CountDocuments, len(candidates))

	if discovery {
		if err := x.pruneMissing(ctx, candidates, tally); err != nil {
			finish(ctx, tracker, err)
			return pipeline.Failed(err, tally.Summary())
		}
	}

	changes, err := x.changes.UnprocessedFiles(ctx, candidates)
	if err != nil {
		err = unavailable("check changes", err)
		finish(ctx, tracker, err)
		return pipeline.Failed(err, tally.Summary())
	}
	tally.AddSkipped(changes.UpToDate())
	tally.Set(pipeline.CountRevision, changes.RevisionChanged())

	for _, path := range changes.Missing() {
		if err := x.forget(ctx, path); err != nil {
			tally.Fail(path, err)
			continue
		}
		tally.Skip(path, pipeline.KindIntegrity, "file not readable, removed from index")
	}

	work := changes.Files()
	tracker.SetTotal(ctx, len(work))
	x.logger.Info("reprocessing documents",
		slog.String("operation", operation.String()),
		slog.Int("candidates", len(candidates)),
		slog.Int("changed", len(work)),
		slog.Int("up_to_date", changes.UpToDate()),
		slog.Int("revision_changed", changes.RevisionChanged()),
		slog.Bool("vcs", changes.VCSAvailable()),
	)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.parallelism)
	for _, path := range work {
		g.Go(func() error {
			n, err := x.processFile(gctx, path, changes.Hash(path))
			switch {
			case err == nil:
				tally.Processed()
				tally.Add(pipeline.CountChunks, n)
			case errors.Is(err, document.ErrNoChunks):
				tally.Skip(path, pipeline.KindIntegrity, "document has no text to index")
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				x.logger.Warn("failed to index document",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				tally.Fail(path, err)
			}
			tracker.SetCurrent(gctx, int(done.Add(1)), path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		finish(ctx, tracker, err)
		return pipeline.Failed(err, tally.Summary())
	}

	x.recordRevision(ctx)
	tracker.Complete(ctx)
	return pipeline.Succeeded(tally.Summary())
}

// processFile loads, embeds and replaces one file, then records the hash
// it was indexed at.
func (x *Indexer) processFile(ctx context.Context, path, hash string) (int, error) {
	chunks, err := x.loader.LoadAndChunk(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}

	if len(chunks) == 0 {
		if err := x.index.DeleteFile(ctx, path); err != nil {
			return 0, err
		}
		if err := x.changes.MarkProcessedHash(ctx, path, hash); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%s: %w", path, document.ErrNoChunks)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text()
	}
	vectors, err := x.embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", path, err)
	}
	for i := range chunks {
		chunks[i] = chunks[i].WithVector(vectors[i])
	}

	if err := x.index.ReplaceFile(ctx, path, chunks); err != nil {
		return 0, err
	}
	if err := x.changes.MarkProcessedHash(ctx, path, hash); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (x *Indexer) embed(ctx context.Context, texts []string) ([][]float64, error) {
	var vectors [][]float64
	err := call(ctx, x.policy, x.logger, "embed chunks", func(ctx context.Context) error {
		v, err := x.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(v) != len(texts) {
			return fmt.Errorf("%w: got %d, want %d", errEmbeddingCount, len(v), len(texts))
		}
		vectors = v
		return nil
	})
	return vectors, err
}

// pruneMissing drops ledger entries and chunks of documents that are no
// longer among the candidates.
func (x *Indexer) pruneMissing(ctx context.Context, candidates []string, tally *pipeline.Tally) error {
	records, err := x.ledger.Find(ctx)
	if err != nil {
		return unavailable("list ledger", err)
	}
	present := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		present[c] = struct{}{}
	}
	for _, r := range records {
		if _, ok := present[r.Path()]; ok {
			continue
		}
		if err := x.forget(ctx, r.Path()); err != nil {
			tally.Fail(r.Path(), err)
			continue
		}
		tally.Add(pipeline.CountPruned, 1)
		x.logger.Info("pruned missing document", slog.String("path", r.Path()))
	}
	return nil
}

// forget removes path's chunks, then its ledger entry.
func (x *Indexer) forget(ctx context.Context, path string) error {
	if err := x.index.DeleteFile(ctx, path); err != nil {
		return err
	}
	if err := x.ledger.DeleteBy(ctx, query.WithPath(path)); err != nil {
		return fmt.Errorf("delete ledger record: %w", err)
	}
	return nil
}

func (x *Indexer) recordRevision(ctx context.Context) {
	if x.meta == nil || x.vcs == nil || !x.vcs.IsRepository(ctx) {
		return
	}
	rev, err := x.vcs.CurrentRevision(ctx)
	if err != nil || rev == "" {
		return
	}
	if err := x.meta.Set(ctx, meta.KeyLastIndexedRevision, rev); err != nil {
		x.logger.Warn("failed to record indexed revision", slog.String("error", err.Error()))
	}
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
