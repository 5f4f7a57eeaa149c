package persistence

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scrumpoker/scrumpoker/config"
	"github.com/scrumpoker/scrumpoker/types"
	"github.com/tidwall/buntdb"
)

const roomKeyPrefix = "room:"

type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	return &BuntDBPersist{db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	var db *buntdb.DB
	if cfg.PersistenceConfig.BuntDBConfig.Name != "" {
		fileName := cfg.PersistenceConfig.BuntDBConfig.Name
		var err error
		db, err = buntdb.Open(fileName)
		if err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (p *BuntDBPersist) StoreRoom(room types.Room) error {
	room.Sanitize()
	u, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(roomKeyPrefix+room.RoomId, string(u), nil)
		return err
	})
}

func (p *BuntDBPersist) GetRoom(room *types.Room) error {
	if room.RoomId == "" {
		return fmt.Errorf("no room id")
	}
	err := p.db.View(func(tx *buntdb.Tx) error {
		u, err := tx.Get(roomKeyPrefix + room.RoomId)
		if err != nil {
			return err
		}
		err = json.Unmarshal([]byte(u), room)
		if err != nil {
			return err
		}
		return nil
	})
	if err == buntdb.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return nil
}

func (p *BuntDBPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		var innerErr error
		err := tx.AscendKeys(roomKeyPrefix+"*", func(key, val string) bool {
			room := &types.Room{}
			if innerErr = json.Unmarshal([]byte(val), room); innerErr != nil {
				return false
			}
			room.RoomId = strings.TrimPrefix(key, roomKeyPrefix)
			rooms = append(rooms, room)
			return true
		})
		if innerErr != nil {
			return innerErr
		}
		return err
	})
	return rooms, err
}

func (p *BuntDBPersist) DeleteRoom(room *types.Room) error {
	if room.RoomId == "" {
		return fmt.Errorf("no room id")
	}
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(roomKeyPrefix + room.RoomId)
		return err
	})
	if err == buntdb.ErrNotFound {
		// already gone, deletion is idempotent
		return nil
	}
	return err
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
