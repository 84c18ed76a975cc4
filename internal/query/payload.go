package query

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// toRecords normalises an insert/update payload into rows. Accepted shapes are
// Record, map[string]any, slices of either, and structs or slices of structs
// mapped through their json tags.
func toRecords(data any) ([]Record, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case Record:
		return []Record{v}, nil
	case map[string]any:
		return []Record{Record(v)}, nil
	case []Record:
		return v, nil
	case []map[string]any:
		out := make([]Record, len(v))
		for i, row := range v {
			out[i] = Record(row)
		}
		return out, nil
	}

	rv := reflect.Indirect(reflect.ValueOf(data))
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]Record, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			row, err := toRecord(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("payload row %d: %w", i, err)
			}
			out = append(out, row)
		}
		return out, nil
	default:
		row, err := toRecord(data)
		if err != nil {
			return nil, err
		}
		return []Record{row}, nil
	}
}

func toRecord(value any) (Record, error) {
	switch v := value.(type) {
	case Record:
		return v, nil
	case map[string]any:
		return Record(v), nil
	}
	if rv := reflect.Indirect(reflect.ValueOf(value)); rv.Kind() != reflect.Struct && rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("unsupported payload type %T", value)
	}
	out := map[string]any{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(value); err != nil {
		return nil, fmt.Errorf("convert payload: %w", err)
	}
	return Record(out), nil
}

// bindValue applies the payload serialization rule: objects and arrays of
// objects become JSON text, scalars and arrays of scalars are bound as-is.
func bindValue(value any) (any, error) {
	switch value.(type) {
	case nil, string, []byte, time.Time, driver.Valuer:
		return value, nil
	case json.RawMessage:
		return string(value.(json.RawMessage)), nil
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Struct:
		if _, ok := rv.Interface().(time.Time); ok {
			return rv.Interface(), nil
		}
		return marshalJSON(rv.Interface())
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 || !isCompound(rv.Index(0)) {
			return rv.Interface(), nil
		}
		return marshalJSON(rv.Interface())
	default:
		return rv.Interface(), nil
	}
}

func isCompound(v reflect.Value) bool {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return v.Type() != reflect.TypeOf([]byte(nil))
	case reflect.Struct:
		return v.Type() != reflect.TypeOf(time.Time{})
	default:
		return false
	}
}

func marshalJSON(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode json value: %w", err)
	}
	return string(raw), nil
}
