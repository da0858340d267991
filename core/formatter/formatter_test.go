package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func symbolListing() Listing {
	return Listing{Kind: "symbols", Columns: []string{"symbol", "kind", "module"}}
}

func symbolRows() []map[string]any {
	return []map[string]any{
		{"symbol": "echo.Ping", "kind": "message", "module": "client.messages", "source": "messages.proto"},
		{"symbol": "echo.Echo", "kind": "service", "module": "client.echo", "source": "echo.proto"},
	}
}

// ===========================================
// Registry Tests
// ===========================================

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.formatters == nil {
		t.Fatal("formatters map should be initialized")
	}
	if r.defaultFmt != "table" {
		t.Errorf("default format should be 'table', got %q", r.defaultFmt)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	f := NewTableFormatter()
	if err := r.Register(f); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := r.Register(f)
	if err == nil {
		t.Fatal("expected error when registering duplicate formatter")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("error should mention 'already registered', got: %v", err)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(NewJSONFormatter())

	if f, ok := r.Get("json"); !ok || f.Name() != "json" {
		t.Errorf("Get(json) = %v, %v", f, ok)
	}
	if _, ok := r.Get("xml"); ok {
		t.Error("Get(xml) should fail")
	}
}

func TestRegistry_Default_Fallback(t *testing.T) {
	r := NewRegistry()
	if r.Default() != nil {
		t.Error("empty registry should have no default")
	}

	r.Register(NewYAMLFormatter())
	r.Register(NewJSONFormatter())
	if got := r.Default().Name(); got != "json" {
		t.Errorf("fallback should be first name in order, got %q", got)
	}

	r.Register(NewTableFormatter())
	if got := r.Default().Name(); got != "table" {
		t.Errorf("Default() = %q, want table", got)
	}
}

func TestRegistry_SetDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(NewJSONFormatter())

	if err := r.SetDefault("yaml"); err == nil {
		t.Error("SetDefault should reject unregistered formatter")
	}
	if err := r.SetDefault("json"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	if r.Default().Name() != "json" {
		t.Errorf("Default() = %q", r.Default().Name())
	}
}

func TestRegistry_List(t *testing.T) {
	got := strings.Join(List(), ",")
	if got != "json,table,yaml" {
		t.Errorf("List() = %q", got)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	r.Register(NewTableFormatter())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Get("table")
			r.List()
			r.Default()
		}()
	}
	wg.Wait()
}

// ===========================================
// Table
// ===========================================

func TestTableFormatter_FormatList_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTableFormatter().FormatList(&buf, symbolListing(), nil, FormatOptions{}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No symbols found.\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestTableFormatter_FormatList_DefaultColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTableFormatter().FormatList(&buf, symbolListing(), symbolRows(), FormatOptions{}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "SYMBOL KIND MODULE" {
		t.Errorf("header = %q", lines[0])
	}
	if strings.Contains(buf.String(), "messages.proto") {
		t.Error("column outside the listing defaults should not be printed")
	}
}

func TestTableFormatter_FormatList_WithColumns(t *testing.T) {
	var buf bytes.Buffer
	opts := FormatOptions{Columns: []string{"source"}, NoHeader: true}
	if err := NewTableFormatter().FormatList(&buf, symbolListing(), symbolRows(), opts); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "messages.proto\necho.proto\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestTableFormatter_FormatList_SortedKeysWithoutColumns(t *testing.T) {
	var buf bytes.Buffer
	rows := []map[string]any{{"b": 1, "a": "x"}}
	if err := NewTableFormatter().FormatList(&buf, Listing{Kind: "rows"}, rows, FormatOptions{NoHeader: true}); err != nil {
		t.Fatal(err)
	}
	if strings.Join(strings.Fields(buf.String()), " ") != "x 1" {
		t.Errorf("got %q", buf.String())
	}
}

func TestTableFormatter_FormatRecord(t *testing.T) {
	var buf bytes.Buffer
	row := map[string]any{"run_id": "run_1", "failed": 0}
	l := Listing{Kind: "runs", Columns: []string{"run_id", "failed"}}
	if err := NewTableFormatter().FormatRecord(&buf, l, row, FormatOptions{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Run Id:") || !strings.Contains(out, "run_1") {
		t.Errorf("missing label or value:\n%s", out)
	}

	buf.Reset()
	NewTableFormatter().FormatRecord(&buf, l, nil, FormatOptions{})
	if buf.String() != "Not found.\n" {
		t.Errorf("nil record = %q", buf.String())
	}
}

func TestTableFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	NewTableFormatter().FormatError(&buf, errors.New("boom"))
	if buf.String() != "Error: boom\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		max  int
		want string
	}{
		{nil, 0, "-"},
		{"", 0, "-"},
		{"abc", 0, "abc"},
		{true, 0, "yes"},
		{false, 0, "no"},
		{42, 0, "42"},
		{3.0, 0, "3"},
		{2.5, 0, "2.50"},
		{[]string{"Ping", "Pong"}, 0, "Ping, Pong"},
		{ts, 0, "2024-03-01T12:00:00Z"},
		{1500 * time.Millisecond, 0, "1.5s"},
		{map[string]int{"a": 1}, 0, `{"a":1}`},
		{"abcdefghij", 6, "abc..."},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in, tt.max); got != tt.want {
			t.Errorf("formatValue(%v, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFormatLabel(t *testing.T) {
	if got := formatLabel("started_at"); got != "Started At" {
		t.Errorf("got %q", got)
	}
	if got := formatLabel("module"); got != "Module" {
		t.Errorf("got %q", got)
	}
}

// ===========================================
// JSON
// ===========================================

func TestJSONFormatter_FormatList(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter().FormatList(&buf, symbolListing(), symbolRows(), FormatOptions{}); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Kind  string           `json:"kind"`
		Count int              `json:"count"`
		Data  []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	if out.Kind != "symbols" || out.Count != 2 {
		t.Errorf("kind=%q count=%d", out.Kind, out.Count)
	}
	// structured formats keep every field unless columns are requested
	if out.Data[0]["source"] != "messages.proto" {
		t.Errorf("data[0] = %v", out.Data[0])
	}
}

func TestJSONFormatter_FormatList_Compact(t *testing.T) {
	var buf bytes.Buffer
	opts := FormatOptions{Compact: true, Columns: []string{"symbol"}}
	if err := NewJSONFormatter().FormatList(&buf, symbolListing(), symbolRows()[:1], opts); err != nil {
		t.Fatal(err)
	}
	want := `{"count":1,"data":[{"symbol":"echo.Ping"}],"kind":"symbols"}` + "\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestJSONFormatter_FormatList_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter().FormatList(&buf, symbolListing(), nil, FormatOptions{Compact: true})
	if buf.String() != `{"count":0,"data":[],"kind":"symbols"}`+"\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestJSONFormatter_FormatRecord_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter().FormatRecord(&buf, Listing{Kind: "modules"}, nil, FormatOptions{Compact: true})
	if buf.String() != `{"data":null,"kind":"modules"}`+"\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestJSONFormatter_FormatRecord_NonexistentColumn(t *testing.T) {
	var buf bytes.Buffer
	row := map[string]any{"module": "client.echo"}
	opts := FormatOptions{Compact: true, Columns: []string{"module", "missing"}}
	NewJSONFormatter().FormatRecord(&buf, Listing{Kind: "modules"}, row, opts)
	if buf.String() != `{"data":{"module":"client.echo"},"kind":"modules"}`+"\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestJSONFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	NewJSONFormatter().FormatError(&buf, errors.New("boom"))
	var out map[string]string
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["error"] != "boom" {
		t.Errorf("got %v", out)
	}
}

// ===========================================
// YAML
// ===========================================

func TestYAMLFormatter_FormatList(t *testing.T) {
	var buf bytes.Buffer
	opts := FormatOptions{Columns: []string{"symbol", "kind"}}
	if err := NewYAMLFormatter().FormatList(&buf, symbolListing(), symbolRows(), opts); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Kind  string              `yaml:"kind"`
		Count int                 `yaml:"count"`
		Data  []map[string]string `yaml:"data"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid yaml: %v\n%s", err, buf.String())
	}
	if out.Count != 2 || out.Data[1]["symbol"] != "echo.Echo" {
		t.Errorf("got %+v", out)
	}
	if _, ok := out.Data[0]["module"]; ok {
		t.Error("module column was not requested")
	}
}

func TestYAMLFormatter_FormatRecord_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewYAMLFormatter().FormatRecord(&buf, Listing{Kind: "runs"}, nil, FormatOptions{})
	if !strings.Contains(buf.String(), "data: null") {
		t.Errorf("got %q", buf.String())
	}
}

func TestYAMLFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	NewYAMLFormatter().FormatError(&buf, errors.New("boom"))
	if buf.String() != "error: boom\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestFormatters_ImplementInterface(t *testing.T) {
	var _ Formatter = NewTableFormatter()
	var _ Formatter = NewJSONFormatter()
	var _ Formatter = NewYAMLFormatter()
}
