package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Participant is one member of a room, unique by user id.
type Participant struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`

	// set when the entry was decoded from a legacy string-only record, so
	// Sanitize can report the document as dirty
	legacy bool
}

// UnmarshalJSON accepts both the canonical object shape and the legacy
// string-only records found in old room documents, which are normalized to
// {userId: value, username: value}.
func (p *Participant) UnmarshalJSON(b []byte) error {
	var legacy string
	if err := json.Unmarshal(b, &legacy); err == nil {
		p.UserId = legacy
		p.Username = legacy
		p.legacy = true
		return nil
	}
	type participant Participant
	var t participant
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	*p = Participant(t)
	return nil
}

// Participants defined JSON data type, need to implements driver.Valuer, sql.Scanner interface
type Participants []Participant

// Value return json value, implement driver.Valuer interface
func (m Participants) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	ba, err := json.Marshal([]Participant(m))
	return string(ba), err
}

// Scan scan value into Jsonb, implements sql.Scanner interface
func (m *Participants) Scan(val interface{}) error {
	ba, err := jsonColumnBytes(val)
	if err != nil {
		return err
	}
	t := make([]Participant, 0)
	err = json.Unmarshal(ba, &t)
	*m = Participants(t)
	return err
}

// GormDataType gorm common data type
func (m Participants) GormDataType() string {
	return "participants"
}

// GormDBDataType gorm db data type
func (Participants) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumnType(db)
}

// Rounds defined JSON data type, need to implements driver.Valuer, sql.Scanner interface
type Rounds []Round

// Value return json value, implement driver.Valuer interface
func (m Rounds) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	ba, err := json.Marshal([]Round(m))
	return string(ba), err
}

// Scan scan value into Jsonb, implements sql.Scanner interface
func (m *Rounds) Scan(val interface{}) error {
	ba, err := jsonColumnBytes(val)
	if err != nil {
		return err
	}
	t := make([]Round, 0)
	err = json.Unmarshal(ba, &t)
	*m = Rounds(t)
	return err
}

// GormDataType gorm common data type
func (m Rounds) GormDataType() string {
	return "rounds"
}

// GormDBDataType gorm db data type
func (Rounds) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumnType(db)
}

func jsonColumnBytes(val interface{}) ([]byte, error) {
	switch v := val.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case nil:
		return []byte("null"), nil
	default:
		return nil, errors.New(fmt.Sprint("Failed to unmarshal JSONB value:", val))
	}
}

func jsonColumnType(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
