package sqlexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestNewNeonHTTPDerivesEndpoint(t *testing.T) {
	n, err := NewNeonHTTP(NeonConfig{ConnectionString: "postgres://u:p@ep-cool-1.eu-central-1.aws.neon.tech/reyada?sslmode=require"})
	if err != nil {
		t.Fatalf("NewNeonHTTP() error = %v", err)
	}
	if n.endpoint != "https://ep-cool-1.eu-central-1.aws.neon.tech/sql" {
		t.Fatalf("endpoint = %q", n.endpoint)
	}
	if _, err := NewNeonHTTP(NeonConfig{}); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}

func TestNeonHTTPExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s", r.Method)
		}
		if got := r.Header.Get("Neon-Connection-String"); got != "postgres://u:p@db.example/reyada" {
			t.Fatalf("Neon-Connection-String = %q", got)
		}
		var body neonQuery
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Query != `SELECT * FROM facilities WHERE is_active = $1` {
			t.Fatalf("query = %q", body.Query)
		}
		if !reflect.DeepEqual(body.Params, []any{"true"}) {
			t.Fatalf("params = %#v", body.Params)
		}
		_, _ = w.Write([]byte(`{
			"fields":[
				{"name":"id","dataTypeID":20},
				{"name":"name","dataTypeID":25},
				{"name":"price","dataTypeID":1700},
				{"name":"amenities","dataTypeID":3802},
				{"name":"tags","dataTypeID":1009},
				{"name":"closed_at","dataTypeID":1184}
			],
			"rows":[{"id":"3","name":"Pool","price":"9.5","amenities":"{\"sauna\":true}","tags":"{indoor,heated}","closed_at":null}]
		}`))
	}))
	defer server.Close()

	n, err := NewNeonHTTP(NeonConfig{ConnectionString: "postgres://u:p@db.example/reyada", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewNeonHTTP() error = %v", err)
	}
	rows, err := n.Execute(context.Background(), `SELECT * FROM facilities WHERE is_active = $1`, []any{true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d", len(rows))
	}
	row := rows[0]
	if row["id"] != int64(3) {
		t.Fatalf("id = %#v", row["id"])
	}
	if row["name"] != "Pool" {
		t.Fatalf("name = %#v", row["name"])
	}
	if row["price"] != 9.5 {
		t.Fatalf("price = %#v", row["price"])
	}
	if !reflect.DeepEqual(row["amenities"], map[string]any{"sauna": true}) {
		t.Fatalf("amenities = %#v", row["amenities"])
	}
	if !reflect.DeepEqual(row["tags"], []any{"indoor", "heated"}) {
		t.Fatalf("tags = %#v", row["tags"])
	}
	if v, ok := row["closed_at"]; !ok || v != nil {
		t.Fatalf("closed_at = %#v", v)
	}
}

func TestNeonHTTPExecuteMapsErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"duplicate key value violates unique constraint \"profiles_email_key\"","code":"23505"}`))
	}))
	defer server.Close()

	n, err := NewNeonHTTP(NeonConfig{ConnectionString: "postgres://u:p@db.example/reyada", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewNeonHTTP() error = %v", err)
	}
	_, err = n.Execute(context.Background(), `INSERT INTO profiles ("email") VALUES ($1) RETURNING *`, []any{"a@b.c"})
	if !IsUniqueViolation(err) {
		t.Fatalf("Execute() error = %v, want unique violation", err)
	}
}

func TestNeonHTTPExecuteBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body neonBatch
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Queries) != 2 {
			t.Fatalf("queries = %d", len(body.Queries))
		}
		_, _ = w.Write([]byte(`{"results":[
			{"fields":[{"name":"id","dataTypeID":25}],"rows":[{"id":"u-1"}]},
			{"fields":[{"name":"id","dataTypeID":25}],"rows":[{"id":"p-1"}]}
		]}`))
	}))
	defer server.Close()

	n, err := NewNeonHTTP(NeonConfig{ConnectionString: "postgres://u:p@db.example/reyada", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewNeonHTTP() error = %v", err)
	}
	results, err := n.ExecuteBatch(context.Background(), []Statement{
		{Text: `INSERT INTO "neon_auth"."user" ("id") VALUES ($1) RETURNING *`, Params: []any{"u-1"}},
		{Text: `INSERT INTO profiles ("id") VALUES ($1) RETURNING *`, Params: []any{"p-1"}},
	})
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if results[0][0]["id"] != "u-1" || results[1][0]["id"] != "p-1" {
		t.Fatalf("results = %#v", results)
	}
}

func TestEncodeParam(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{"x", "x"},
		{42, "42"},
		{1.5, "1.5"},
		{false, "false"},
		{at, "2026-03-04T05:06:07Z"},
		{[]byte{0xde, 0xad}, `\xdead`},
		{[]string{"a", `b"c`}, `{"a","b\"c"}`},
		{[]any{"a", nil}, `{"a",NULL}`},
		{map[string]any{"k": 1}, `{"k":1}`},
	}
	for _, tc := range tests {
		got, err := encodeParam(tc.in)
		if err != nil {
			t.Fatalf("encodeParam(%#v) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("encodeParam(%#v) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}
