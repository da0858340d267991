package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/irusland/pyroto/adapters/clock"
	"github.com/irusland/pyroto/adapters/hasher"
	apihttp "github.com/irusland/pyroto/adapters/http"
	"github.com/irusland/pyroto/adapters/idgen"
	"github.com/irusland/pyroto/adapters/memory"
	"github.com/irusland/pyroto/adapters/metrics"
	"github.com/irusland/pyroto/core/build"
	"github.com/irusland/pyroto/core/events"
	"github.com/irusland/pyroto/core/generator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const messagesProto = `syntax = "proto3";
package demo;

message Ping {
  string text = 1;
}
`

const echoProto = `syntax = "proto3";
package demo;

import "messages.proto";

service Echo {
  rpc Say(Ping) returns (Ping);
}
`

type testEnv struct {
	src      string
	pipeline *build.Pipeline
	bus      *events.Bus
	server   *apihttp.Server
	ts       *httptest.Server
}

func setup(t *testing.T, files map[string]string) *testEnv {
	t.Helper()

	src, out := t.TempDir(), t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	bus := events.NewBus(zerolog.Nop())
	pipeline := build.NewPipeline(build.Deps{
		Cache:   memory.NewCacheStore(),
		Clock:   clock.NewStepped(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second),
		IDGen:   idgen.NewSequential("run_"),
		Hasher:  hasher.Blake2b{},
		Metrics: m,
		Bus:     bus,
	}, build.Config{
		SourceDir:   src,
		OutputDir:   out,
		Package:     "client",
		Generator:   generator.DefaultOptions(),
		Strict:      true,
		SortImports: true,
	}, zerolog.Nop())

	server := apihttp.NewServer(apihttp.Deps{Pipeline: pipeline, Bus: bus, Metrics: m}, zerolog.Nop())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{src: src, pipeline: pipeline, bus: bus, server: server, ts: ts}
}

func (e *testEnv) do(t *testing.T, method, path string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestServer_Health(t *testing.T) {
	env := setup(t, nil)
	resp, body := env.do(t, http.MethodGet, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"ok"`) {
		t.Errorf("body = %s", body)
	}
}

func TestServer_Symbols(t *testing.T) {
	env := setup(t, map[string]string{"messages.proto": messagesProto, "echo.proto": echoProto})

	resp, body := env.do(t, http.MethodGet, "/_symbols")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Symbols []build.SymbolInfo `json:"symbols"`
		Errors  []string           `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatal(err)
	}

	found := map[string]string{}
	for _, s := range out.Symbols {
		found[s.Symbol] = s.Module + "/" + s.Kind
	}
	if found["Ping"] != "client.messages/message" {
		t.Errorf("Ping = %q", found["Ping"])
	}
	if found["Echo"] != "client.echo/service" {
		t.Errorf("Echo = %q", found["Echo"])
	}
	if found["google.protobuf.Timestamp"] != "datetime/well-known" {
		t.Errorf("Timestamp = %q", found["google.protobuf.Timestamp"])
	}
	if len(out.Errors) != 0 {
		t.Errorf("errors = %v", out.Errors)
	}
}

func TestServer_Symbols_SyntaxError(t *testing.T) {
	env := setup(t, map[string]string{"broken.proto": "message {"})
	resp, body := env.do(t, http.MethodGet, "/_symbols")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"error"`) {
		t.Errorf("body = %s", body)
	}
}

func TestServer_BuildAndPreview(t *testing.T) {
	env := setup(t, map[string]string{"messages.proto": messagesProto, "echo.proto": echoProto})

	resp, body := env.do(t, http.MethodGet, "/_modules")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"modules":[]`) {
		t.Fatalf("before build: %d %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/_build")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("build status = %d: %s", resp.StatusCode, body)
	}
	var res build.Result
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatal(err)
	}
	if res.Generated != 2 || res.Failed != 0 {
		t.Errorf("generated=%d failed=%d", res.Generated, res.Failed)
	}

	resp, body = env.do(t, http.MethodGet, "/_modules")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("modules status = %d", resp.StatusCode)
	}
	var mods struct {
		RunID   string `json:"run_id"`
		Modules []struct {
			Module       string   `json:"module"`
			Declarations []string `json:"declarations"`
			Imports      int      `json:"imports"`
		} `json:"modules"`
	}
	if err := json.Unmarshal([]byte(body), &mods); err != nil {
		t.Fatal(err)
	}
	if mods.RunID != res.RunID || len(mods.Modules) != 2 {
		t.Fatalf("modules = %+v", mods)
	}
	if mods.Modules[0].Module != "client.echo" || mods.Modules[0].Declarations[0] != "Echo" {
		t.Errorf("first module = %+v", mods.Modules[0])
	}

	resp, body = env.do(t, http.MethodGet, "/_modules/client.echo")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("module status = %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/x-python") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(body, "class Echo(BaseService):") {
		t.Errorf("module source:\n%s", body)
	}
}

func TestServer_ModuleNotFound(t *testing.T) {
	env := setup(t, map[string]string{"messages.proto": messagesProto})
	resp, _ := env.do(t, http.MethodGet, "/_modules/client.missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServer_ModuleInvalidPath(t *testing.T) {
	env := setup(t, nil)
	for _, path := range []string{"/_modules/..", "/_modules/a..b", "/_modules/1abc"} {
		resp, _ := env.do(t, http.MethodGet, path)
		if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
		}
	}
}

func TestServer_BuildWithFailures(t *testing.T) {
	env := setup(t, map[string]string{
		"messages.proto": messagesProto,
		"broken.proto":   "syntax = \"proto3\";\nservice Broken {\n  rpc Do(Missing) returns (Ping);\n}\n",
	})
	resp, body := env.do(t, http.MethodPost, "/_build")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res build.Result
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatal(err)
	}
	if res.Generated != 1 || res.Failed != 1 {
		t.Errorf("generated=%d failed=%d", res.Generated, res.Failed)
	}
}

func TestServer_FollowsBuildsFromBus(t *testing.T) {
	env := setup(t, map[string]string{"messages.proto": messagesProto})

	if _, err := env.pipeline.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	last := env.server.LastResult()
	if last == nil || last.Generated != 1 {
		t.Fatalf("last result = %+v", last)
	}
}

func TestServer_Metrics(t *testing.T) {
	env := setup(t, map[string]string{"messages.proto": messagesProto})
	env.do(t, http.MethodPost, "/_build")
	env.do(t, http.MethodGet, "/_modules/client.messages")

	resp, body := env.do(t, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		"pyroto_builds_total",
		`pyroto_http_request_duration_seconds_count{method="GET",route="/_modules/{module}",status="2xx"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestServer_ListenAndServe_Shutdown(t *testing.T) {
	env := setup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
