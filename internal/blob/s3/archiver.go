package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// Narrow store interfaces required by the archiver. Implementations (the
// Postgres stores) satisfy these implicitly; the archiver only names the
// query methods it actually calls.

// MarketArchiveStore provides read access to market records for archival.
type MarketArchiveStore interface {
	GetByID(ctx context.Context, id string) (domain.Market, error)
}

// PositionArchiveStore provides read access to a market's positions.
type PositionArchiveStore interface {
	ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error)
}

// SettlementArchiveStore provides read access to a market's settlement log.
type SettlementArchiveStore interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.SettlementEntry, error)
	Log(ctx context.Context, marketID, event string, detail map[string]any) error
}

// SettlementArchiver implements domain.Archiver: it serializes the full
// settlement record of a terminal market to JSONL and uploads it to blob
// storage. Deletion of the archived rows from the primary store is
// intentionally not performed here; that is a separate, explicit step after
// the archive has been verified.
type SettlementArchiver struct {
	writer    domain.BlobWriter
	markets   MarketArchiveStore
	positions PositionArchiveStore
	log       SettlementArchiveStore
}

var _ domain.Archiver = (*SettlementArchiver)(nil)

// NewSettlementArchiver creates a new SettlementArchiver.
func NewSettlementArchiver(
	writer domain.BlobWriter,
	markets MarketArchiveStore,
	positions PositionArchiveStore,
	log SettlementArchiveStore,
) *SettlementArchiver {
	return &SettlementArchiver{
		writer:    writer,
		markets:   markets,
		positions: positions,
		log:       log,
	}
}

// archiveLine is one record in the archive file. Kind discriminates the
// payload type so a reader can process the file line by line.
type archiveLine struct {
	Kind     string                  `json:"kind"` // "market" | "position" | "log"
	Market   *domain.Market          `json:"market,omitempty"`
	Position *domain.Position        `json:"position,omitempty"`
	Entry    *domain.SettlementEntry `json:"entry,omitempty"`
}

// ArchiveMarket uploads the settlement record of a terminal market to
// settlements/YYYY/MM/market-{id}.jsonl and returns the object path. The
// first line is the market snapshot, followed by its positions and the full
// settlement log.
func (a *SettlementArchiver) ArchiveMarket(ctx context.Context, marketID string) (string, error) {
	market, err := a.markets.GetByID(ctx, marketID)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive market %s: %w", marketID, err)
	}
	if !market.State.Terminal() {
		return "", fmt.Errorf("s3blob: archive market %s: state %s is not terminal", marketID, market.State)
	}

	positions, err := a.positions.ListByMarket(ctx, marketID)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive market %s positions: %w", marketID, err)
	}

	entries, err := a.log.ListByMarket(ctx, marketID, domain.ListOpts{})
	if err != nil {
		return "", fmt.Errorf("s3blob: archive market %s log: %w", marketID, err)
	}

	lines := make([]archiveLine, 0, 1+len(positions)+len(entries))
	lines = append(lines, archiveLine{Kind: "market", Market: &market})
	for i := range positions {
		lines = append(lines, archiveLine{Kind: "position", Position: &positions[i]})
	}
	for i := range entries {
		lines = append(lines, archiveLine{Kind: "log", Entry: &entries[i]})
	}

	buf, err := marshalJSONL(lines)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive market %s marshal: %w", marketID, err)
	}

	path := archivePath(market)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive market %s upload: %w", marketID, err)
	}

	if err := a.log.Log(ctx, marketID, "archived", map[string]any{
		"path":      path,
		"positions": len(positions),
		"entries":   len(entries),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive market %s record: %w", marketID, err)
	}

	return path, nil
}

// archivePath builds the S3 key for a market's settlement archive,
// partitioned by the year and month the market reached its terminal state.
//
//	settlements/2026/08/market-{id}.jsonl
func archivePath(m domain.Market) string {
	at := m.UpdatedAt
	if m.ResolvedAt != nil {
		at = *m.ResolvedAt
	}
	return fmt.Sprintf("settlements/%s/market-%s.jsonl", at.Format("2006/01"), m.ID)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
