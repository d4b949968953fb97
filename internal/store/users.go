package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// User is a dashboard account. AllowedSites is empty for admins, who see
// every site.
type User struct {
	Username     string           `bson:"username" json:"username"`
	PasswordHash string           `bson:"password" json:"-"`
	Role         string           `bson:"role" json:"role"`
	AllowedSites []string         `bson:"allowed_sites" json:"allowed_sites"`
	Dashboard    []map[string]any `bson:"dashboard,omitempty" json:"dashboard,omitempty"`
}

func (s *Store) FindUser(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.Collection(usersCollection).
		FindOne(ctx, bson.M{"username": username}).
		Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding user %s: %w", username, err)
	}
	return &user, nil
}

// ListUsers returns all accounts with password hashes projected out.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	opts := options.Find().SetProjection(bson.M{"password": 0})
	cur, err := s.db.Collection(usersCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	var users []User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, user User) error {
	if _, err := s.FindUser(ctx, user.Username); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	if _, err := s.db.Collection(usersCollection).InsertOne(ctx, user); err != nil {
		return fmt.Errorf("creating user %s: %w", user.Username, err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	res, err := s.db.Collection(usersCollection).DeleteOne(ctx, bson.M{"username": username})
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", username, err)
	}
	if res.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SaveDashboard persists a user's dashboard layout on their account document.
func (s *Store) SaveDashboard(ctx context.Context, username string, config []map[string]any) error {
	_, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"dashboard": config}},
	)
	if err != nil {
		return fmt.Errorf("saving dashboard for %s: %w", username, err)
	}
	return nil
}

// EnsureAdmin seeds a default admin account when none exists, so a fresh
// deployment is reachable.
func (s *Store) EnsureAdmin(ctx context.Context, passwordHash string) error {
	err := s.db.Collection(usersCollection).
		FindOne(ctx, bson.M{"role": "admin"}).
		Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("checking for admin: %w", err)
	}

	admin := User{
		Username:     "admin",
		PasswordHash: passwordHash,
		Role:         "admin",
		AllowedSites: []string{},
	}
	if _, err := s.db.Collection(usersCollection).InsertOne(ctx, admin); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	s.logger.Warn("default admin account created, change its password")
	return nil
}
