package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/meta"
	"github.com/helixml/taxon/domain/query"
)

// LegacyLedgerVersion is recorded in the meta table once the legacy JSON
// ledger has been imported.
const LegacyLedgerVersion = "1"

// ErrMalformedLegacyLedger indicates the legacy ledger file could not be parsed.
var ErrMalformedLegacyLedger = errors.New("malformed legacy ledger")

// LegacyLedgerMigration imports a JSON processed-files ledger into the
// relational ledger. Two layouts are accepted:
//
//	{"files": {"a.md": {"hash": "...", "commit": "...", "processed_at": "..."}}}
//	{"a.md": "<hash>"}
//
// Paths already present in the relational ledger are left untouched.
type LegacyLedgerMigration struct {
	path   string
	ledger ledger.Store
	meta   meta.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLegacyLedgerMigration creates a LegacyLedgerMigration for the file at path.
func NewLegacyLedgerMigration(path string, ledgerStore ledger.Store, metaStore meta.Store, logger *slog.Logger) *LegacyLedgerMigration {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyLedgerMigration{
		path:   path,
		ledger: ledgerStore,
		meta:   metaStore,
		logger: logger,
		now:    time.Now,
	}
}

// Applicable reports whether the legacy file exists and has not been
// imported at the current version.
func (m *LegacyLedgerMigration) Applicable(ctx context.Context) (bool, error) {
	if m.path == "" {
		return false, nil
	}
	if _, err := os.Stat(m.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat legacy ledger: %w", err)
	}
	version, ok, err := m.meta.Get(ctx, meta.KeyLegacyLedgerVersion)
	if err != nil {
		return false, err
	}
	return !ok || version != LegacyLedgerVersion, nil
}

// Apply imports the legacy ledger and records the migration version. It
// returns the number of imported records.
func (m *LegacyLedgerMigration) Apply(ctx context.Context) (int, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return 0, fmt.Errorf("read legacy ledger: %w", err)
	}
	records, err := m.parse(data)
	if err != nil {
		return 0, err
	}

	existing, err := m.ledger.Find(ctx, query.WithPathIn(paths(records)))
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, r := range existing {
		known[r.Path()] = true
	}

	fresh := make([]ledger.Record, 0, len(records))
	for _, r := range records {
		if !known[r.Path()] {
			fresh = append(fresh, r)
		}
	}
	if err := m.ledger.SaveAll(ctx, fresh); err != nil {
		return 0, err
	}
	if err := m.meta.Set(ctx, meta.KeyLegacyLedgerVersion, LegacyLedgerVersion); err != nil {
		return 0, err
	}

	m.logger.Info("imported legacy ledger",
		slog.String("path", m.path),
		slog.Int("imported", len(fresh)),
		slog.Int("skipped", len(records)-len(fresh)),
	)
	return len(fresh), nil
}

type legacyEntry struct {
	Hash        string          `json:"hash"`
	Commit      string          `json:"commit"`
	ProcessedAt json.RawMessage `json:"processed_at"`
}

func (m *LegacyLedgerMigration) parse(data []byte) ([]ledger.Record, error) {
	var nested struct {
		Files map[string]legacyEntry `json:"files"`
	}
	if err := json.Unmarshal(data, &nested); err == nil && nested.Files != nil {
		records := make([]ledger.Record, 0, len(nested.Files))
		for path, e := range nested.Files {
			if e.Hash == "" {
				return nil, fmt.Errorf("%w: %s has no hash", ErrMalformedLegacyLedger, path)
			}
			records = append(records, ledger.NewRecord(path, e.Hash, e.Commit, m.timestamp(e.ProcessedAt)))
		}
		return sorted(records), nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedLegacyLedger, err)
	}
	now := m.now().UTC()
	records := make([]ledger.Record, 0, len(flat))
	for path, hash := range flat {
		records = append(records, ledger.NewRecord(path, hash, "", now))
	}
	return sorted(records), nil
}

// timestamp accepts RFC 3339 strings and Unix seconds.
func (m *LegacyLedgerMigration) timestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return m.now().UTC()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return unixSeconds(f)
		}
		return m.now().UTC()
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return unixSeconds(f)
	}
	return m.now().UTC()
}

func unixSeconds(f float64) time.Time {
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
}

func sorted(records []ledger.Record) []ledger.Record {
	sort.Slice(records, func(i, j int) bool { return records[i].Path() < records[j].Path() })
	return records
}

func paths(records []ledger.Record) []string {
	result := make([]string, len(records))
	for i, r := range records {
		result[i] = r.Path()
	}
	return result
}
