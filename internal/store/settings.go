package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrSettingNotFound = errors.New("setting not found")

type Setting struct {
	Key   string `bson:"key"`
	Value any    `bson:"value"`
}

func (s *Store) GetSetting(ctx context.Context, key string) (any, error) {
	var setting Setting
	err := s.db.Collection(settingsCollection).
		FindOne(ctx, bson.M{"key": key}).
		Decode(&setting)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading setting %s: %w", key, err)
	}
	return setting.Value, nil
}

func (s *Store) PutSetting(ctx context.Context, key string, value any) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(settingsCollection).UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"value": value}},
		opts,
	)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}
