package resource

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one stored resource. Fields never contains secret columns.
type Record[K comparable] struct {
	Key       K
	Fields    map[string]any
	CreatedAt time.Time
}

// MarshalJSON flattens the record to {"id":…, <fields>, "created_at":…}.
// created_at is omitted when the store did not supply it, as in update echoes.
func (r Record[K]) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["id"] = r.Key
	if !r.CreatedAt.IsZero() {
		m["created_at"] = r.CreatedAt.UTC()
	}
	return json.Marshal(m)
}
