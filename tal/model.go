package tal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
	"go.uber.org/zap"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

// SwitchData is the persisted form of a switch.
type SwitchData struct {
	Comment   string      `json:"comment"`
	Incoming  layout.Edge `json:"incoming"`
	State     SwitchState `json:"state"`
	Automatic bool        `json:"automatic"`
	Locked    bool        `json:"locked"`
	Policy    string      `json:"policy,omitempty"`
}

// Model stores switches in a buntdb database.
// Keys are "switch:<uuid>:data" and values are JSON-encoded SwitchData.
type Model struct {
	db *buntdb.DB
}

// OpenModel opens the database at path (":memory:" for an in-memory database).
func OpenModel(path string) (*Model, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Model{db: db}, nil
}

func (m *Model) Close() error {
	return m.db.Close()
}

func switchKey(id uuid.UUID) string {
	return fmt.Sprintf("switch:%s:data", id)
}

func (m *Model) Save(id uuid.UUID, sd SwitchData) error {
	data, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(switchKey(id), string(data), nil)
		return err
	})
}

// Delete removes a switch. Deleting a switch that isn't stored is not an error.
func (m *Model) Delete(id uuid.UUID) error {
	return m.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(switchKey(id))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
}

// LoadAll returns all stored switches. Malformed entries are logged and skipped.
func (m *Model) LoadAll() (map[uuid.UUID]SwitchData, error) {
	res := map[uuid.UUID]SwitchData{}
	err := m.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("switch:*", func(key, value string) bool {
			if !strings.HasSuffix(key, ":data") {
				return true
			}
			idRaw := strings.TrimSuffix(strings.TrimPrefix(key, "switch:"), ":data")
			id, err := uuid.Parse(idRaw)
			if err != nil {
				zap.S().Errorw("parsing key failed",
					"key", key,
					"value", value)
				return true
			}
			var sd SwitchData
			err = json.Unmarshal([]byte(value), &sd)
			if err != nil {
				zap.S().Errorw("unmarshalling failed",
					"key", key,
					"value", value,
					"err", err)
				return true
			}
			res[id] = sd
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
