package sqlexec

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type NeonConfig struct {
	// ConnectionString is the postgres:// URL sent to the proxy.
	ConnectionString string
	// Endpoint overrides the https://<host>/sql URL derived from the connection string.
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NeonHTTP speaks the Neon serverless "SQL over HTTP" protocol. Each call is a
// single POST; batches are sent together and run by the proxy in one transaction.
type NeonHTTP struct {
	endpoint         string
	connectionString string
	client           *http.Client
	types            *pgtype.Map
}

func NewNeonHTTP(cfg NeonConfig) (*NeonHTTP, error) {
	if strings.TrimSpace(cfg.ConnectionString) == "" {
		return nil, fmt.Errorf("neon connection string is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		parsed, err := url.Parse(cfg.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("parse neon connection string: %w", err)
		}
		if parsed.Hostname() == "" {
			return nil, fmt.Errorf("neon connection string has no host")
		}
		endpoint = "https://" + parsed.Hostname() + "/sql"
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &NeonHTTP{
		endpoint:         endpoint,
		connectionString: cfg.ConnectionString,
		client:           client,
		types:            pgtype.NewMap(),
	}, nil
}

type neonQuery struct {
	Query  string `json:"query"`
	Params []any  `json:"params"`
}

type neonBatch struct {
	Queries []neonQuery `json:"queries"`
}

type neonField struct {
	Name       string `json:"name"`
	DataTypeID uint32 `json:"dataTypeID"`
}

type neonResult struct {
	Fields []neonField          `json:"fields"`
	Rows   []map[string]*string `json:"rows"`
}

type neonBatchResult struct {
	Results []neonResult `json:"results"`
}

type neonError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (n *NeonHTTP) Execute(ctx context.Context, text string, params []any) ([]Row, error) {
	query, err := newNeonQuery(text, params)
	if err != nil {
		return nil, err
	}
	var result neonResult
	if err := n.post(ctx, query, &result); err != nil {
		return nil, err
	}
	return n.decodeResult(result)
}

func (n *NeonHTTP) ExecuteBatch(ctx context.Context, statements []Statement) ([][]Row, error) {
	batch := neonBatch{Queries: make([]neonQuery, 0, len(statements))}
	for _, stmt := range statements {
		query, err := newNeonQuery(stmt.Text, stmt.Params)
		if err != nil {
			return nil, err
		}
		batch.Queries = append(batch.Queries, query)
	}
	var result neonBatchResult
	if err := n.post(ctx, batch, &result); err != nil {
		return nil, err
	}
	if len(result.Results) != len(statements) {
		return nil, fmt.Errorf("neon batch returned %d results for %d statements", len(result.Results), len(statements))
	}
	out := make([][]Row, 0, len(result.Results))
	for _, res := range result.Results {
		rows, err := n.decodeResult(res)
		if err != nil {
			return nil, err
		}
		out = append(out, rows)
	}
	return out, nil
}

func (n *NeonHTTP) Ping(ctx context.Context) error {
	_, err := n.Execute(ctx, "SELECT 1", nil)
	return err
}

func (n *NeonHTTP) post(ctx context.Context, payload any, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal neon request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build neon request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Neon-Connection-String", n.connectionString)
	req.Header.Set("Neon-Raw-Text-Output", "true")
	req.Header.Set("Neon-Array-Mode", "false")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("neon request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read neon response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr neonError
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("neon request failed with status %d", resp.StatusCode)
		}
		return &Error{Code: apiErr.Code, Message: apiErr.Message}
	}
	if err := json.Unmarshal(respBody, dst); err != nil {
		return fmt.Errorf("decode neon response: %w", err)
	}
	return nil
}

func (n *NeonHTTP) decodeResult(result neonResult) ([]Row, error) {
	rows := make([]Row, 0, len(result.Rows))
	for _, raw := range result.Rows {
		row := make(Row, len(result.Fields))
		for _, field := range result.Fields {
			value := raw[field.Name]
			if value == nil {
				row[field.Name] = nil
				continue
			}
			decoded, err := decodeText(n.types, field.DataTypeID, *value)
			if err != nil {
				return nil, fmt.Errorf("decode column %s: %w", field.Name, err)
			}
			row[field.Name] = decoded
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func newNeonQuery(text string, params []any) (neonQuery, error) {
	encoded := make([]any, len(params))
	for i, param := range params {
		value, err := encodeParam(param)
		if err != nil {
			return neonQuery{}, fmt.Errorf("encode param $%d: %w", i+1, err)
		}
		encoded[i] = value
	}
	return neonQuery{Query: text, Params: encoded}, nil
}

// encodeParam renders a bind value in Postgres text format; nil stays JSON null.
func encodeParam(value any) (any, error) {
	if valuer, ok := value.(driver.Valuer); ok {
		v, err := valuer.Value()
		if err != nil {
			return nil, err
		}
		value = v
	}
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []byte:
		return `\x` + hex.EncodeToString(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.RawMessage:
		return string(v), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return arrayLiteral(rv)
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	}
}

func arrayLiteral(rv reflect.Value) (string, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		elem := rv.Index(i).Interface()
		item, err := encodeParam(elem)
		if err != nil {
			return "", err
		}
		if item == nil {
			b.WriteString("NULL")
			continue
		}
		text := item.(string)
		if _, isBytes := elem.([]byte); !isBytes {
			if kind := reflect.ValueOf(elem).Kind(); kind == reflect.Slice || kind == reflect.Array {
				b.WriteString(text)
				continue
			}
		}
		b.WriteByte('"')
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String(), nil
}
