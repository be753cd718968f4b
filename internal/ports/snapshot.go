package ports

import (
	"context"

	"rsiScanner/internal/domain"
)

// SnapshotPublisher receives the sorted buckets after every scanned batch.
type SnapshotPublisher interface {
	Publish(overbought, oversold []domain.ResultRow) domain.Snapshot
}

// SnapshotReader gives read-only access to the latest published snapshot.
type SnapshotReader interface {
	Snapshot() domain.Snapshot
}

// SnapshotArchive stores completed scan cycles for later inspection.
// It is never used to restore state on startup.
type SnapshotArchive interface {
	// SaveCycle stores the summary and the final snapshot of a cycle and returns the cycle ID.
	SaveCycle(ctx context.Context, summary domain.CycleSummary, snap domain.Snapshot) (int64, error)
	// ListCycles returns the most recent cycles, newest first.
	ListCycles(ctx context.Context, limit int) ([]domain.CycleSummary, error)
	// CycleSnapshot returns the buckets stored for one cycle, or ErrNotFound.
	CycleSnapshot(ctx context.Context, id int64) (domain.Snapshot, error)
}
