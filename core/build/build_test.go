package build_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/irusland/pyroto/adapters/clock"
	"github.com/irusland/pyroto/adapters/hasher"
	"github.com/irusland/pyroto/adapters/idgen"
	"github.com/irusland/pyroto/adapters/memory"
	"github.com/irusland/pyroto/adapters/metrics"
	"github.com/irusland/pyroto/core/build"
	"github.com/irusland/pyroto/core/events"
	"github.com/irusland/pyroto/core/generator"
	"github.com/irusland/pyroto/core/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const messagesProto = `syntax = "proto3";
package demo;

message Ping {
  string text = 1;
}

message Pong {
  string text = 1;
}
`

const echoProto = `syntax = "proto3";
package demo;

import "messages.proto";

service Echo {
  rpc Say(Ping) returns (Pong);
}
`

type fixture struct {
	src, out string
	cache    *memory.CacheStore
	bus      *events.Bus
	reg      *prometheus.Registry
	pipeline *build.Pipeline
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()

	f := &fixture{
		src:   t.TempDir(),
		out:   t.TempDir(),
		cache: memory.NewCacheStore(),
		bus:   events.NewBus(zerolog.Nop()),
		reg:   prometheus.NewRegistry(),
	}
	for name, content := range files {
		f.write(t, name, content)
	}

	deps := build.Deps{
		Cache:   f.cache,
		Clock:   clock.NewStepped(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond),
		IDGen:   idgen.NewSequential("run_"),
		Hasher:  hasher.Blake2b{},
		Metrics: metrics.NewWithRegistry(f.reg),
		Bus:     f.bus,
	}
	cfg := build.Config{
		SourceDir:   f.src,
		OutputDir:   f.out,
		Package:     "client",
		Generator:   generator.DefaultOptions(),
		Strict:      true,
		SortImports: true,
		Workers:     4,
	}
	f.pipeline = build.NewPipeline(deps, cfg, zerolog.Nop())
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(f.src, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func (f *fixture) output(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.out, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read output %s: %v", rel, err)
	}
	return string(data)
}

func (f *fixture) counter(t *testing.T, name, label, value string) float64 {
	t.Helper()
	families, err := f.reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestModulePath(t *testing.T) {
	tests := []struct {
		rel, prefix, want string
	}{
		{"echo.proto", "", "echo"},
		{"tinkoff/invest/users.proto", "", "tinkoff.invest.users"},
		{"users.proto", "tinkoff.invest.grpc", "tinkoff.invest.grpc.users"},
		{"./a/b.proto", "x", "x.a.b"},
	}

	for _, tt := range tests {
		if got := build.ModulePath(tt.rel, tt.prefix); got != tt.want {
			t.Errorf("ModulePath(%q, %q) = %q, want %q", tt.rel, tt.prefix, got, tt.want)
		}
	}

	if got := build.OutputFile("tinkoff.invest.users"); got != "tinkoff/invest/users.py" {
		t.Errorf("OutputFile = %q", got)
	}
}

func TestRun_GeneratesModules(t *testing.T) {
	f := newFixture(t, map[string]string{
		"messages.proto": messagesProto,
		"echo.proto":     echoProto,
	})

	res, err := f.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.RunID != "run_1" {
		t.Errorf("RunID = %s, want run_1", res.RunID)
	}
	if res.Generated != 2 || res.Skipped != 0 || res.Failed != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/0/0", res.Generated, res.Skipped, res.Failed)
	}
	if !res.FinishedAt.After(res.StartedAt) {
		t.Errorf("FinishedAt %v not after StartedAt %v", res.FinishedAt, res.StartedAt)
	}

	echo := f.output(t, "client/echo.py")
	for _, want := range []string{
		"from client.messages import Ping\n",
		"from client.messages import Pong\n",
		"from client import echo_pb2\n",
		"class Echo(BaseService):\n",
		"def Say(self, request: 'Ping') -> 'Pong':\n",
	} {
		if !strings.Contains(echo, want) {
			t.Errorf("echo.py missing %q:\n%s", want, echo)
		}
	}

	messages := f.output(t, "client/messages.py")
	if !strings.Contains(messages, "class Ping:\n") || !strings.Contains(messages, "class Pong:\n") {
		t.Errorf("messages.py:\n%s", messages)
	}

	rep, ok := res.Module("client.echo")
	if !ok {
		t.Fatal("no report for client.echo")
	}
	if rep.Status != build.StatusGenerated || rep.SourcePath != "echo.proto" {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Declarations) != 1 || rep.Declarations[0] != "Echo" {
		t.Errorf("Declarations = %v, want [Echo]", rep.Declarations)
	}
	if rep.Bytes != len(echo) {
		t.Errorf("Bytes = %d, want %d", rep.Bytes, len(echo))
	}
}

func TestRun_NestedDirectories(t *testing.T) {
	f := newFixture(t, map[string]string{
		"invest/messages.proto": messagesProto,
	})

	if _, err := f.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	f.output(t, "client/invest/messages.py")
}

func TestRun_SkipsUnchangedModules(t *testing.T) {
	f := newFixture(t, map[string]string{
		"messages.proto": messagesProto,
		"echo.proto":     echoProto,
	})
	ctx := context.Background()

	if _, err := f.pipeline.Run(ctx); err != nil {
		t.Fatalf("first Run error: %v", err)
	}

	res, err := f.pipeline.Run(ctx)
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if res.Generated != 0 || res.Skipped != 2 {
		t.Errorf("second run counts = %d generated, %d skipped, want 0, 2", res.Generated, res.Skipped)
	}

	// a comment changes echo.proto but no symbol
	f.write(t, "echo.proto", "// edited\n"+echoProto)
	res, err = f.pipeline.Run(ctx)
	if err != nil {
		t.Fatalf("third Run error: %v", err)
	}
	if res.Generated != 1 || res.Skipped != 1 {
		t.Errorf("third run counts = %d generated, %d skipped, want 1, 1", res.Generated, res.Skipped)
	}
	if rep, _ := res.Module("client.echo"); rep.Status != build.StatusGenerated {
		t.Errorf("client.echo status = %s, want generated", rep.Status)
	}

	// a removed output file is regenerated
	if err := os.Remove(filepath.Join(f.out, "client", "messages.py")); err != nil {
		t.Fatalf("remove output: %v", err)
	}
	res, err = f.pipeline.Run(ctx)
	if err != nil {
		t.Fatalf("fourth Run error: %v", err)
	}
	if rep, _ := res.Module("client.messages"); rep.Status != build.StatusGenerated {
		t.Errorf("client.messages status = %s, want generated", rep.Status)
	}
}

func TestRun_OptionsInvalidateCache(t *testing.T) {
	f := newFixture(t, map[string]string{"echo.proto": messagesProto + "service Echo { rpc Say(stream Ping) returns (Pong); }\n"})
	ctx := context.Background()

	if _, err := f.pipeline.Run(ctx); err != nil {
		t.Fatalf("first Run error: %v", err)
	}

	cfg := f.pipeline.Config()
	cfg.Generator.StreamingBodies = generator.StreamingNative
	f.pipeline.UpdateConfig(cfg)

	res, err := f.pipeline.Run(ctx)
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if res.Generated != 1 {
		t.Errorf("Generated = %d after option change, want 1", res.Generated)
	}
	if !strings.Contains(f.output(t, "client/echo.py"), "request_iterator=protobuf_requests") {
		t.Error("native streaming body not written")
	}
}

func TestRun_Force(t *testing.T) {
	f := newFixture(t, map[string]string{"messages.proto": messagesProto})
	ctx := context.Background()

	if _, err := f.pipeline.Run(ctx); err != nil {
		t.Fatalf("first Run error: %v", err)
	}

	cfg := f.pipeline.Config()
	cfg.Force = true
	f.pipeline.UpdateConfig(cfg)

	res, err := f.pipeline.Run(ctx)
	if err != nil {
		t.Fatalf("forced Run error: %v", err)
	}
	if res.Generated != 1 || res.Skipped != 0 {
		t.Errorf("forced run counts = %d/%d, want 1/0", res.Generated, res.Skipped)
	}
}

func TestRun_DuplicateSymbolFailsModule(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.proto": messagesProto,
		"b.proto": `syntax = "proto3";
message Ping {}
message Other {}
`,
	})

	res, err := f.pipeline.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for duplicate symbol")
	}
	if !errors.Is(err, registry.ErrDuplicateSymbol) {
		t.Errorf("error %v does not match ErrDuplicateSymbol", err)
	}

	var me *build.ModuleError
	if !errors.As(err, &me) || me.Module != "client.b" {
		t.Errorf("failed module = %+v, want client.b", me)
	}

	if res.Generated != 1 || res.Failed != 1 {
		t.Errorf("counts = %d generated, %d failed, want 1, 1", res.Generated, res.Failed)
	}
	if _, err := os.Stat(filepath.Join(f.out, "client", "b.py")); !os.IsNotExist(err) {
		t.Errorf("output written for failed module: %v", err)
	}
	f.output(t, "client/a.py")
}

func TestRun_FailedRegistrationLeavesNoSymbols(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.proto": "syntax = \"proto3\";\nmessage Dup {}\n",
		"b.proto": "syntax = \"proto3\";\nmessage Keep {}\nmessage Dup {}\n",
		"c.proto": "syntax = \"proto3\";\nmessage User {\n  Keep keep = 1;\n}\n",
	})

	res, err := f.pipeline.Run(context.Background())
	if !errors.Is(err, registry.ErrDuplicateSymbol) {
		t.Errorf("error %v does not match ErrDuplicateSymbol", err)
	}
	if !errors.Is(err, registry.ErrUnknownSymbol) {
		t.Errorf("error %v does not match ErrUnknownSymbol", err)
	}
	if res.Generated != 1 || res.Failed != 2 {
		t.Errorf("counts = %d generated, %d failed, want 1, 2", res.Generated, res.Failed)
	}

	rep, _ := res.Module("client.c")
	if rep.Status != build.StatusFailed || !strings.Contains(rep.Error, "Keep") {
		t.Errorf("c report = %+v", rep)
	}
	for _, name := range []string{"b.py", "c.py"} {
		if _, err := os.Stat(filepath.Join(f.out, "client", name)); !os.IsNotExist(err) {
			t.Errorf("%s written: %v", name, err)
		}
	}
}

func TestRun_LenientDuplicates(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.proto": messagesProto,
		"b.proto": "syntax = \"proto3\";\nmessage Ping {}\n",
	})
	cfg := f.pipeline.Config()
	cfg.Strict = false
	f.pipeline.UpdateConfig(cfg)

	res, err := f.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Generated != 2 {
		t.Errorf("Generated = %d, want 2", res.Generated)
	}
}

func TestRun_UnknownSymbolFailsModule(t *testing.T) {
	f := newFixture(t, map[string]string{
		"messages.proto": messagesProto,
		"broken.proto": `syntax = "proto3";
service Broken {
  rpc Do(Missing) returns (Ping);
}
`,
	})

	res, err := f.pipeline.Run(context.Background())
	if !errors.Is(err, registry.ErrUnknownSymbol) {
		t.Fatalf("error = %v, want ErrUnknownSymbol", err)
	}
	if !strings.Contains(err.Error(), "Missing") {
		t.Errorf("error %q does not name the symbol", err)
	}

	rep, _ := res.Module("client.broken")
	if rep.Status != build.StatusFailed || rep.Error == "" {
		t.Errorf("broken report = %+v", rep)
	}
	if _, err := os.Stat(filepath.Join(f.out, "client", "broken.py")); !os.IsNotExist(err) {
		t.Errorf("output written for failed module: %v", err)
	}
	f.output(t, "client/messages.py")

	// failed modules are not cached and fail again
	res, _ = f.pipeline.Run(context.Background())
	if res.Failed != 1 || res.Skipped != 1 {
		t.Errorf("second run counts = %d failed, %d skipped, want 1, 1", res.Failed, res.Skipped)
	}
}

func TestRun_SyntaxErrorAborts(t *testing.T) {
	f := newFixture(t, map[string]string{
		"messages.proto": messagesProto,
		"bad.proto":      "message {",
	})

	res, err := f.pipeline.Run(context.Background())
	if err == nil {
		t.Fatal("expected parse error")
	}
	if res != nil {
		t.Errorf("Result = %+v, want nil", res)
	}

	entries, _ := os.ReadDir(f.out)
	if len(entries) != 0 {
		t.Errorf("output written after parse error: %v", entries)
	}
	if got := f.counter(t, "pyroto_builds_total", "outcome", "aborted"); got != 1 {
		t.Errorf("aborted builds = %v, want 1", got)
	}
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture(t, map[string]string{"messages.proto": messagesProto})
	cfg := f.pipeline.Config()
	cfg.DryRun = true
	f.pipeline.UpdateConfig(cfg)

	res, err := f.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Generated != 1 {
		t.Errorf("Generated = %d, want 1", res.Generated)
	}

	entries, _ := os.ReadDir(f.out)
	if len(entries) != 0 {
		t.Errorf("dry run wrote files: %v", entries)
	}
	if f.cache.Len() != 0 {
		t.Errorf("dry run cached %d modules", f.cache.Len())
	}
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t, map[string]string{"messages.proto": messagesProto})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.pipeline.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if res == nil || res.Generated != 0 {
		t.Errorf("cancelled run result = %+v", res)
	}
}

func TestRun_RecordsRunAndMetrics(t *testing.T) {
	f := newFixture(t, map[string]string{
		"messages.proto": messagesProto,
		"echo.proto":     echoProto,
	})
	ctx := context.Background()

	if _, err := f.pipeline.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if _, err := f.pipeline.Run(ctx); err != nil {
		t.Fatalf("second Run error: %v", err)
	}

	runs, err := f.cache.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run_2" || runs[0].Skipped != 2 {
		t.Errorf("runs = %+v", runs)
	}

	if got := f.counter(t, "pyroto_modules_total", "result", "generated"); got != 2 {
		t.Errorf("generated modules = %v, want 2", got)
	}
	if got := f.counter(t, "pyroto_modules_total", "result", "skipped"); got != 2 {
		t.Errorf("skipped modules = %v, want 2", got)
	}
	if got := f.counter(t, "pyroto_builds_total", "outcome", "ok"); got != 2 {
		t.Errorf("ok builds = %v, want 2", got)
	}
}

func TestRun_PublishesEvents(t *testing.T) {
	f := newFixture(t, map[string]string{
		"messages.proto": messagesProto,
		"broken.proto":   "syntax = \"proto3\";\nmessage Broken { Missing m = 1; }\n",
	})

	var (
		mu    sync.Mutex
		names []string
		final *build.Result
	)
	f.bus.Subscribe("*", func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, e.Name+":"+e.Module)
		if e.Name == events.BuildFinished {
			final = e.Data.(*build.Result)
		}
		return nil
	})

	if _, err := f.pipeline.Run(context.Background()); err == nil {
		t.Fatal("expected module failure")
	}

	mu.Lock()
	defer mu.Unlock()
	got := strings.Join(names, ",")
	want := "build.started:,module.failed:client.broken,module.generated:client.messages,build.finished:"
	if got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
	if final == nil || final.Failed != 1 {
		t.Errorf("build.finished payload = %+v", final)
	}
}

func TestRun_DeterministicAcrossWorkers(t *testing.T) {
	files := map[string]string{
		"messages.proto": messagesProto,
		"echo.proto":     echoProto,
		"more.proto":     "syntax = \"proto3\";\nmessage More { repeated Ping pings = 1; map<string, Pong> pongs = 2; }\n",
	}

	var outputs []string
	for _, workers := range []int{1, 8} {
		f := newFixture(t, files)
		cfg := f.pipeline.Config()
		cfg.Workers = workers
		f.pipeline.UpdateConfig(cfg)

		if _, err := f.pipeline.Run(context.Background()); err != nil {
			t.Fatalf("Run with %d workers: %v", workers, err)
		}
		outputs = append(outputs, f.output(t, "client/echo.py")+f.output(t, "client/more.py"))
	}

	if outputs[0] != outputs[1] {
		t.Errorf("output differs between worker counts:\n%s\n---\n%s", outputs[0], outputs[1])
	}
}

func TestPlan_RegistersWithoutWriting(t *testing.T) {
	f := newFixture(t, map[string]string{
		"messages.proto": messagesProto,
		"echo.proto":     echoProto,
	})

	plan, err := f.pipeline.Plan()
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if len(plan.Units) != 2 || len(plan.Failed) != 0 {
		t.Errorf("plan = %d units, %d failed", len(plan.Units), len(plan.Failed))
	}
	if plan.Units[0].Module != "client.echo" {
		t.Errorf("first unit = %s, want client.echo", plan.Units[0].Module)
	}

	e, err := plan.Table.Resolve("Ping")
	if err != nil {
		t.Fatalf("Resolve Ping: %v", err)
	}
	if e.Module != "client.messages" {
		t.Errorf("Ping owner = %s, want client.messages", e.Module)
	}

	entries, _ := os.ReadDir(f.out)
	if len(entries) != 0 {
		t.Errorf("Plan wrote files: %v", entries)
	}
}
