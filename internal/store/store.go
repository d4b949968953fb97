package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/netsight/reportd/internal/report"
)

const (
	recordsCollection        = "records"
	processedFilesCollection = "processed_files"
	usersCollection          = "users"
	settingsCollection       = "settings"
)

// MaxFindRows caps a single filter query to bound memory.
const MaxFindRows = 100_000

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Store wraps the MongoDB collections backing the report pipeline: canonical
// records, the processed-file ledger, users, and settings.
type Store struct {
	logger *zap.Logger
	client *mongo.Client
	db     *mongo.Database
}

func New(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	s := &Store{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	s.client = client
	s.db = client.Database(database)

	s.logger.Info("connected to mongodb", zap.String("database", database))
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the query paths depend on. Safe to call
// on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(recordsCollection).Indexes().CreateOne(ctx,
		mongo.IndexModel{
			Keys: bson.D{
				{Key: "dt_obj", Value: 1},
				{Key: "site", Value: 1},
				{Key: "device", Value: 1},
			},
		})
	if err != nil {
		return fmt.Errorf("creating records index: %w", err)
	}

	unique := options.Index().SetUnique(true)

	_, err = s.db.Collection(processedFilesCollection).Indexes().CreateOne(ctx,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "filename", Value: 1}},
			Options: unique,
		})
	if err != nil {
		return fmt.Errorf("creating ledger index: %w", err)
	}

	_, err = s.db.Collection(usersCollection).Indexes().CreateOne(ctx,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: unique,
		})
	if err != nil {
		return fmt.Errorf("creating users index: %w", err)
	}

	return nil
}

// InsertRecords bulk-persists parsed records.
func (s *Store) InsertRecords(ctx context.Context, records []report.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = r
	}
	if _, err := s.db.Collection(recordsCollection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("inserting records: %w", err)
	}
	return nil
}

func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	return s.db.Collection(recordsCollection).CountDocuments(ctx, bson.M{})
}

// DeleteTestRecords removes synthetic records marked with is_test.
func (s *Store) DeleteTestRecords(ctx context.Context) (int64, error) {
	res, err := s.db.Collection(recordsCollection).DeleteMany(ctx, bson.M{"is_test": true})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) DistinctSites(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, "site", bson.M{})
}

func (s *Store) DistinctDevices(ctx context.Context, site string) ([]string, error) {
	filter := bson.M{}
	if site != "" {
		filter["site"] = site
	}
	return s.distinctStrings(ctx, "device", filter)
}

func (s *Store) distinctStrings(ctx context.Context, field string, filter bson.M) ([]string, error) {
	values, err := s.db.Collection(recordsCollection).Distinct(ctx, field, filter)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	sort.Strings(out)
	return out, nil
}

// RecordQuery filters the record collection. Empty Sites means all sites; an
// empty Device means all devices; a zero Window means no time bound.
type RecordQuery struct {
	Sites  []string
	Device string
	Window time.Duration
}

func (q RecordQuery) filter(now time.Time) bson.M {
	filter := bson.M{}
	if len(q.Sites) > 0 {
		filter["site"] = bson.M{"$in": q.Sites}
	}
	if q.Device != "" {
		filter["device"] = q.Device
	}
	if q.Window > 0 {
		filter["dt_obj"] = bson.M{"$gte": now.Add(-q.Window)}
	}
	return filter
}

// FindRecords returns records matching the query, projected to the fields the
// aggregation paths use and capped at MaxFindRows.
func (s *Store) FindRecords(ctx context.Context, q RecordQuery) ([]report.Record, error) {
	opts := options.Find().
		SetProjection(bson.M{
			"dt_obj":  1,
			"clients": 1,
			"health":  1,
			"state":   1,
			"site":    1,
			"device":  1,
			"_id":     0,
		}).
		SetLimit(MaxFindRows)

	cur, err := s.db.Collection(recordsCollection).Find(ctx, q.filter(time.Now()), opts)
	if err != nil {
		return nil, fmt.Errorf("finding records: %w", err)
	}

	var records []report.Record
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return records, nil
}

// LatestRecords returns up to limit records sorted by timestamp descending,
// optionally restricted to a site set.
func (s *Store) LatestRecords(ctx context.Context, sites []string, limit int64) ([]report.Record, error) {
	filter := bson.M{}
	if len(sites) > 0 {
		filter["site"] = bson.M{"$in": sites}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "dt_obj", Value: -1}}).
		SetLimit(limit)

	cur, err := s.db.Collection(recordsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("finding latest records: %w", err)
	}

	var records []report.Record
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decoding latest records: %w", err)
	}
	return records, nil
}
