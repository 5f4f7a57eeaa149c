package persistence

import (
	"errors"
	"fmt"

	"github.com/scrumpoker/scrumpoker/config"
	"github.com/scrumpoker/scrumpoker/types"
)

// ErrNotFound is returned by GetRoom when no room with the given id exists.
// Both backends translate their native miss errors into this one.
var ErrNotFound = errors.New("room not found")

type Persister interface {
	StoreRoom(types.Room) error
	GetRoom(*types.Room) error
	GetRooms() ([]*types.Room, error)
	DeleteRoom(*types.Room) error
	Close() error
}

// NewPersister returns the persister selected by the configuration, buntdb
// by default.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "", "buntdb":
		return NewBuntPersister(cfg)

	case "sqlite", "postgres":
		return NewGormPersister(cfg)

	default:
		return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
	}
}
