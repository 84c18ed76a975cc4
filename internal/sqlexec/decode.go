package sqlexec

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// decodeText turns a text-format wire value into a Go value using the type registered for oid.
// Unknown types are returned as the raw string.
func decodeText(types *pgtype.Map, oid uint32, src string) (any, error) {
	typ, ok := types.TypeForOID(oid)
	if !ok {
		return src, nil
	}
	value, err := typ.Codec.DecodeValue(types, oid, pgtype.TextFormatCode, []byte(src))
	if err != nil {
		return nil, err
	}
	return normalize(value), nil
}

// normalize maps pgtype values onto the plain JSON-friendly set callers expect:
// numerics become float64, uuids become strings, small ints widen to int64.
func normalize(value any) any {
	switch v := value.(type) {
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(v).String()
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	default:
		return value
	}
}

// normalizeColumn adjusts values produced by the pgx database/sql driver, which
// reports JSON, NUMERIC and array columns as raw text.
func normalizeColumn(types *pgtype.Map, databaseType string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	typeName := strings.ToUpper(databaseType)

	raw, isText := textOf(value)
	switch {
	case typeName == "JSON" || typeName == "JSONB":
		if !isText {
			return value, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	case typeName == "NUMERIC":
		if !isText {
			return value, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case strings.HasPrefix(typeName, "_"):
		if !isText {
			return value, nil
		}
		typ, ok := types.TypeForName(strings.ToLower(typeName))
		if !ok {
			return raw, nil
		}
		return decodeText(types, typ.OID, raw)
	case typeName == "BYTEA":
		return value, nil
	}
	if b, ok := value.([]byte); ok {
		return string(b), nil
	}
	return normalize(value), nil
}

func textOf(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}
