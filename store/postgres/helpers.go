package postgres

import (
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// toJSONB encodes m for a JSONB parameter. A nil map becomes SQL NULL.
func toJSONB(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return sonic.ConfigStd.Marshal(m)
}

// fromJSONB decodes a JSONB column. NULL decodes to a nil map.
func fromJSONB(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := sonic.ConfigStd.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
