package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/query"
	domainservice "github.com/helixml/taxon/domain/service"
)

// representative is a document and the mean of its chunk vectors.
type representative struct {
	id     string
	vector []float64
}

// representatives returns the representative vectors of the indexed
// documents in path order, at most limit of them when limit > 0. Documents
// without chunks are skipped and recorded on tally; they are never given a
// default vector.
func representatives(
	ctx context.Context,
	ledgerStore ledger.Store,
	index *domainservice.VectorIndex,
	limit int,
	tally *pipeline.Tally,
	logger *slog.Logger,
) ([]representative, []string, error) {
	opts := []query.Option{query.WithOrderAsc("path")}
	if limit > 0 {
		opts = append(opts, query.WithLimit(limit))
	}
	records, err := ledgerStore.Find(ctx, opts...)
	if err != nil {
		return nil, nil, unavailable("list documents", err)
	}

	result := make([]representative, 0, len(records))
	var skipped []string
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		vector, ok, err := index.RepresentativeVector(ctx, r.Path())
		switch {
		case err != nil && errors.Is(err, pipeline.ErrIntegrity):
			logger.Warn("skipping document with inconsistent chunks",
				slog.String("document", r.Path()),
				slog.String("error", err.Error()),
			)
			tally.Skip(r.Path(), pipeline.KindIntegrity, err.Error())
			skipped = append(skipped, r.Path())
			continue
		case err != nil:
			return nil, nil, unavailable("read chunks", err)
		case !ok:
			logger.Debug("skipping document without chunks", slog.String("document", r.Path()))
			tally.Skip(r.Path(), pipeline.KindIntegrity, "no representative vector")
			skipped = append(skipped, r.Path())
			continue
		}
		result = append(result, representative{id: r.Path(), vector: vector})
	}
	return result, skipped, nil
}
