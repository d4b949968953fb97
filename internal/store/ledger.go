package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// FileMarker records that one source file has been ingested. Markers are
// written exactly once, after the file's records are durably persisted.
type FileMarker struct {
	Filename    string    `bson:"filename"`
	ProcessedAt time.Time `bson:"processed_at"`
}

// ProcessedFilenames fetches the full set of ingested filenames in one round
// trip. Ledger sizes are expected in the thousands, so a bulk fetch per sync
// cycle beats per-file existence checks.
func (s *Store) ProcessedFilenames(ctx context.Context) (map[string]struct{}, error) {
	opts := options.Find().SetProjection(bson.M{"filename": 1, "_id": 0})
	cur, err := s.db.Collection(processedFilesCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	var markers []FileMarker
	if err := cur.All(ctx, &markers); err != nil {
		return nil, fmt.Errorf("decoding ledger: %w", err)
	}

	processed := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		processed[m.Filename] = struct{}{}
	}
	return processed, nil
}

// MarkProcessed writes a marker for a successfully ingested file.
func (s *Store) MarkProcessed(ctx context.Context, filename string) error {
	_, err := s.db.Collection(processedFilesCollection).InsertOne(ctx, FileMarker{
		Filename:    filename,
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marking %s processed: %w", filename, err)
	}
	return nil
}

// ResetLedger clears all markers, forcing a full re-sync on the next cycle.
func (s *Store) ResetLedger(ctx context.Context) (int64, error) {
	res, err := s.db.Collection(processedFilesCollection).DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("resetting ledger: %w", err)
	}

	s.logger.Info("ledger reset", zap.Int64("markers_removed", res.DeletedCount))
	return res.DeletedCount, nil
}
