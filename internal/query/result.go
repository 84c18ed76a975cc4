package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/reyadatime/reyadatime/internal/errs"
	"github.com/reyadatime/reyadatime/internal/sqlexec"
)

// Result is the {data, error, count} triple returned by Execute. Data is a
// []sqlexec.Row, a single sqlexec.Row (Single/MaybeSingle) or nil.
type Result struct {
	Data  any         `json:"data"`
	Error *errs.Error `json:"error"`
	Count *int64      `json:"count"`
}

func failure(err *errs.Error) Result {
	return Result{Error: err}
}

// Err returns the result error as a plain error, nil when the call succeeded.
func (r Result) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

func (r Result) Rows() []sqlexec.Row {
	switch data := r.Data.(type) {
	case []sqlexec.Row:
		return data
	case sqlexec.Row:
		return []sqlexec.Row{data}
	default:
		return nil
	}
}

// Row returns the single row of a Single/MaybeSingle result, or the first row
// of a list result.
func (r Result) Row() sqlexec.Row {
	switch data := r.Data.(type) {
	case sqlexec.Row:
		return data
	case []sqlexec.Row:
		if len(data) > 0 {
			return data[0]
		}
	}
	return nil
}

// Decode copies Data into dst using json field names, converting compatible
// scalar types and RFC 3339 strings to time.Time.
func (r Result) Decode(dst any) error {
	if r.Error != nil {
		return r.Error
	}
	if r.Data == nil {
		return nil
	}
	return DecodeInto(r.Data, dst)
}

func DecodeInto(data any, dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Result: dst,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func parseCount(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case json.Number:
		return v.Int64()
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected count value %T", value)
	}
}
