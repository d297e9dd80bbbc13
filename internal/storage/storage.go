// Package storage holds the persistence drivers behind the chat and profile
// repositories.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"fundify-chat/internal/chat"
	"fundify-chat/internal/config"
	"fundify-chat/internal/db"
	"fundify-chat/internal/profile"
)

// Store is what every driver provides.
type Store interface {
	chat.RoomRepository
	chat.MessageRepository
	profile.Repository
	io.Closer
}

var (
	_ Store = (*MongoStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*BadgerStore)(nil)
)

// Open connects the driver named by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, error) {
	switch cfg.Store.Driver {
	case "mongo":
		s, err := OpenMongo(ctx, MongoOptions{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Timeout:  cfg.Mongo.Timeout,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("✅ Connected to MongoDB")
		return s, nil

	case "postgres":
		database, err := db.NewDatabase(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := database.AutoMigrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
		log.Info().Msg("✅ Connected to Postgres")
		return NewPostgresStore(database), nil

	case "badger":
		s, err := OpenBadger(BadgerOptions{Path: cfg.Badger.Path, InMemory: cfg.Badger.InMemory})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Badger.Path).Bool("in_memory", cfg.Badger.InMemory).Msg("✅ Opened Badger store")
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
