package resource

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Drivers disagree on the Go types they return for the same column: pgx
// yields [16]byte for uuid and time.Time for timestamptz, while SQLite may
// return TEXT timestamps and []byte strings. The helpers below normalize.

// Int64Key is the KeySpec for store-assigned integer keys. Any integer
// parses; ids the store never assigned (zero, negative) are simply not found.
func Int64Key() KeySpec[int64] {
	return KeySpec[int64]{
		Parse: func(s string) (int64, error) {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("resource: invalid integer key %q", s)
			}
			return n, nil
		},
		Decode: toInt64,
	}
}

// UUIDKey is the KeySpec for keys generated at creation time.
func UUIDKey() KeySpec[uuid.UUID] {
	return KeySpec[uuid.UUID]{
		Parse: func(s string) (uuid.UUID, error) {
			id, err := uuid.Parse(s)
			if err != nil {
				return uuid.Nil, fmt.Errorf("resource: invalid uuid key %q: %w", s, err)
			}
			return id, nil
		},
		Decode:   toUUID,
		Generate: uuid.New,
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("resource: cannot convert %T to int64", v)
	}
}

func toUUID(v any) (uuid.UUID, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, nil
	case [16]byte:
		return uuid.UUID(u), nil
	case string:
		return uuid.Parse(u)
	case []byte:
		if len(u) == 16 {
			return uuid.FromBytes(u)
		}
		return uuid.ParseBytes(u)
	default:
		return uuid.Nil, fmt.Errorf("resource: cannot convert %T to uuid", v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case []byte:
		return toTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("resource: unrecognized timestamp %q", t)
	default:
		return time.Time{}, fmt.Errorf("resource: cannot convert %T to time", v)
	}
}

// fieldValue normalizes a column value read from the store.
func fieldValue(c Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case Integer:
		return toInt64(v)
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		default:
			return fmt.Sprint(v), nil
		}
	}
}

// decodeRow converts a store row into a Record.
func decodeRow[K comparable](d *Definition[K], row map[string]any) (Record[K], error) {
	key, err := d.Key.Decode(row["id"])
	if err != nil {
		return Record[K]{}, fmt.Errorf("resource: decode %s id: %w", d.Singular, err)
	}
	created, err := toTime(row["created_at"])
	if err != nil {
		return Record[K]{}, fmt.Errorf("resource: decode %s created_at: %w", d.Singular, err)
	}
	fields := make(map[string]any, len(d.Columns))
	for _, c := range d.Columns {
		if c.Secret {
			continue
		}
		v, err := fieldValue(c, row[c.Name])
		if err != nil {
			return Record[K]{}, fmt.Errorf("resource: decode %s %s: %w", d.Singular, c.Name, err)
		}
		fields[c.Name] = v
	}
	return Record[K]{Key: key, Fields: fields, CreatedAt: created}, nil
}
