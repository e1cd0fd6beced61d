package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fovwatch/internal/logging"
	"fovwatch/internal/testsupport"
)

// callbackRecorder captures dispatch order for assertions.
type callbackRecorder struct {
	fovs         []string
	runs         int
	intermediate int
	released     int
	fovErr       error
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		FOV: func(_ context.Context, _, fovID string) error {
			r.fovs = append(r.fovs, fovID)
			return r.fovErr
		},
		Run: func(context.Context, string) error {
			r.runs++
			return nil
		},
		Intermediate: func(context.Context, string) (func(), error) {
			r.intermediate++
			return func() { r.released++ }, nil
		},
	}
}

func newTestHandler(t *testing.T, runFolder string, callbacks Callbacks) *Handler {
	t.Helper()
	handler, err := NewHandler(context.Background(), HandlerOptions{
		RunFolder:       runFolder,
		LogFolder:       t.TempDir(),
		ZeroSizeTimeout: 100 * time.Millisecond,
		Callbacks:       callbacks,
		Logger:          logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	t.Cleanup(handler.Close)
	return handler
}

func TestHandlerHappyPath(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 1},
		{RunOrder: 2, ScanCount: 1},
	})
	rec := &callbackRecorder{}
	handler := newTestHandler(t, runFolder, rec.callbacks())
	ctx := context.Background()

	for _, name := range []string{
		"fov-1-scan-1.bin",
		"fov-1-scan-1.json",
		"fov-2-scan-1.bin",
		"fov-2-scan-1.json",
	} {
		path := testsupport.WriteFOVFile(t, runFolder, name, []byte("data"))
		handler.OnCreated(ctx, path)
	}

	want := []string{"fov-1-scan-1", "fov-2-scan-1"}
	if len(rec.fovs) != len(want) {
		t.Fatalf("fov callbacks = %v, want %v", rec.fovs, want)
	}
	for i, fovID := range want {
		if rec.fovs[i] != fovID {
			t.Fatalf("fov callbacks = %v, want %v", rec.fovs, want)
		}
	}
	if rec.runs != 1 {
		t.Fatalf("run callbacks = %d, want 1", rec.runs)
	}
	if !handler.Complete() {
		t.Fatal("run should be complete")
	}
}

func TestHandlerBackfillsMissedFOVs(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 1},
		{RunOrder: 2, ScanCount: 1},
		{RunOrder: 3, ScanCount: 1},
		{RunOrder: 4, ScanCount: 1},
		{RunOrder: 5, ScanCount: 1},
	})
	rec := &callbackRecorder{}
	handler := newTestHandler(t, runFolder, rec.callbacks())

	// Only the final FOV's bin event arrives; every earlier FOV must be
	// backfilled in run order before it.
	path := testsupport.WriteFOVFile(t, runFolder, "fov-5-scan-1.bin", []byte("data"))
	handler.OnCreated(context.Background(), path)

	want := []string{"fov-1-scan-1", "fov-2-scan-1", "fov-3-scan-1", "fov-4-scan-1", "fov-5-scan-1"}
	if len(rec.fovs) != len(want) {
		t.Fatalf("fov callbacks = %v, want %v", rec.fovs, want)
	}
	for i, fovID := range want {
		if rec.fovs[i] != fovID {
			t.Fatalf("fov callbacks = %v, want %v", rec.fovs, want)
		}
	}
	if rec.runs != 1 {
		t.Fatalf("run callbacks = %d, want 1", rec.runs)
	}
}

func TestHandlerRunCallbackFiresOnce(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 1},
	})
	rec := &callbackRecorder{}
	handler := newTestHandler(t, runFolder, rec.callbacks())
	ctx := context.Background()

	binPath := testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-1.bin", []byte("data"))
	jsonPath := testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-1.json", []byte("{}"))
	handler.OnCreated(ctx, binPath)
	handler.OnCreated(ctx, jsonPath)

	// Late duplicate events must not re-trigger anything.
	handler.OnCreated(ctx, binPath)
	handler.OnCreated(ctx, jsonPath)

	if len(rec.fovs) != 1 {
		t.Fatalf("fov callbacks = %v, want one entry", rec.fovs)
	}
	if rec.runs != 1 {
		t.Fatalf("run callbacks = %d, want 1", rec.runs)
	}
}

func TestHandlerSkipsMolyPoints(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 1},
		{RunOrder: 2, ScanCount: 1, StandardTarget: "Molybdenum Foil"},
		{RunOrder: 3, ScanCount: 1},
	})
	rec := &callbackRecorder{}
	handler := newTestHandler(t, runFolder, rec.callbacks())
	ctx := context.Background()

	for _, name := range []string{
		"fov-1-scan-1.bin", "fov-1-scan-1.json",
		"fov-2-scan-1.bin", "fov-2-scan-1.json",
		"fov-3-scan-1.bin", "fov-3-scan-1.json",
	} {
		path := testsupport.WriteFOVFile(t, runFolder, name, []byte("data"))
		handler.OnCreated(ctx, path)
	}

	want := []string{"fov-1-scan-1", "fov-3-scan-1"}
	if len(rec.fovs) != len(want) || rec.fovs[0] != want[0] || rec.fovs[1] != want[1] {
		t.Fatalf("fov callbacks = %v, want %v", rec.fovs, want)
	}
	if rec.runs != 1 {
		t.Fatalf("run callbacks = %d, want 1", rec.runs)
	}
}

func TestHandlerMultiScanFOV(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 2},
		{RunOrder: 2, ScanCount: 1},
	})
	rec := &callbackRecorder{}
	handler := newTestHandler(t, runFolder, rec.callbacks())
	ctx := context.Background()

	// A scan-2 bin event carries no backfill information; nothing may be
	// dispatched from it.
	scan2Bin := testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-2.bin", []byte("data"))
	handler.OnCreated(ctx, scan2Bin)
	if len(rec.fovs) != 0 {
		t.Fatalf("fov callbacks after scan-2 bin = %v, want none", rec.fovs)
	}

	for _, name := range []string{"fov-1-scan-1.bin", "fov-1-scan-1.json"} {
		handler.OnCreated(ctx, testsupport.WriteFOVFile(t, runFolder, name, []byte("data")))
	}
	if len(rec.fovs) != 1 || rec.fovs[0] != "fov-1-scan-1" {
		t.Fatalf("fov callbacks = %v, want [fov-1-scan-1]", rec.fovs)
	}

	// The final run order arriving dispatches fov-2, but the run must stay
	// incomplete while fov-1's second scan is missing its json.
	binPath := testsupport.WriteFOVFile(t, runFolder, "fov-2-scan-1.bin", []byte("data"))
	handler.OnCreated(ctx, binPath)
	if len(rec.fovs) != 2 || rec.fovs[1] != "fov-2-scan-1" {
		t.Fatalf("fov callbacks = %v, want fov-2-scan-1 second", rec.fovs)
	}
	if handler.Complete() {
		t.Fatal("run complete while fov-1-scan-2 is outstanding")
	}
	if rec.runs != 0 {
		t.Fatalf("run callbacks = %d, want 0 before scan-2 finishes", rec.runs)
	}

	jsonPath := testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-2.json", []byte("{}"))
	handler.OnCreated(ctx, jsonPath)

	want := []string{"fov-1-scan-1", "fov-2-scan-1", "fov-1-scan-2"}
	if len(rec.fovs) != len(want) {
		t.Fatalf("fov callbacks = %v, want %v", rec.fovs, want)
	}
	for i, fovID := range want {
		if rec.fovs[i] != fovID {
			t.Fatalf("fov callbacks = %v, want %v", rec.fovs, want)
		}
	}
	if rec.runs != 1 {
		t.Fatalf("run callbacks = %d, want 1", rec.runs)
	}
	if !handler.Complete() {
		t.Fatal("run should be complete once every scan has both files")
	}
}

func TestHandlerTimeoutSkipsFOV(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 1},
		{RunOrder: 2, ScanCount: 1},
	})
	rec := &callbackRecorder{}
	handler := newTestHandler(t, runFolder, rec.callbacks())
	ctx := context.Background()

	// fov-1's bin never leaves zero size; the wait budget expires and the
	// FOV is dropped.
	empty := testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-1.bin", nil)
	handler.OnCreated(ctx, empty)

	if len(rec.fovs) != 0 {
		t.Fatalf("fov callbacks after timeout = %v, want none", rec.fovs)
	}

	binPath := testsupport.WriteFOVFile(t, runFolder, "fov-2-scan-1.bin", []byte("data"))
	jsonPath := testsupport.WriteFOVFile(t, runFolder, "fov-2-scan-1.json", []byte("{}"))
	handler.OnCreated(ctx, binPath)
	handler.OnCreated(ctx, jsonPath)

	want := []string{"fov-2-scan-1"}
	if len(rec.fovs) != 1 || rec.fovs[0] != want[0] {
		t.Fatalf("fov callbacks = %v, want %v", rec.fovs, want)
	}
	if rec.runs != 1 {
		t.Fatalf("run callbacks = %d, want 1", rec.runs)
	}
	if !handler.Complete() {
		t.Fatal("run should complete despite the timed-out FOV")
	}
}

func TestHandlerCallbackErrorStillMarksProcessed(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 1},
	})
	rec := &callbackRecorder{fovErr: errors.New("boom")}
	handler := newTestHandler(t, runFolder, rec.callbacks())
	ctx := context.Background()

	binPath := testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-1.bin", []byte("data"))
	jsonPath := testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-1.json", []byte("{}"))
	handler.OnCreated(ctx, binPath)
	handler.OnCreated(ctx, jsonPath)

	if len(rec.fovs) != 1 {
		t.Fatalf("fov callbacks = %v, want one attempt", rec.fovs)
	}
	if !handler.Complete() {
		t.Fatal("run should complete even when the fov callback errors")
	}
	if rec.runs != 1 {
		t.Fatalf("run callbacks = %d, want 1", rec.runs)
	}
}

func TestHandlerIntermediateReleaseLifecycle(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 1},
		{RunOrder: 2, ScanCount: 1},
	})
	rec := &callbackRecorder{}
	handler := newTestHandler(t, runFolder, rec.callbacks())
	ctx := context.Background()

	for _, name := range []string{
		"fov-1-scan-1.bin", "fov-1-scan-1.json",
		"fov-2-scan-1.bin", "fov-2-scan-1.json",
	} {
		path := testsupport.WriteFOVFile(t, runFolder, name, []byte("data"))
		handler.OnCreated(ctx, path)
	}

	if rec.intermediate != 2 {
		t.Fatalf("intermediate invocations = %d, want 2", rec.intermediate)
	}
	// The first invocation's state is released before the second runs.
	if rec.released != 1 {
		t.Fatalf("releases before close = %d, want 1", rec.released)
	}
	handler.Close()
	if rec.released != 2 {
		t.Fatalf("releases after close = %d, want 2", rec.released)
	}
}

func TestNewHandlerReplaysExistingFiles(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 1},
		{RunOrder: 2, ScanCount: 1},
	})
	testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-1.bin", []byte("data"))
	testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-1.json", []byte("{}"))
	testsupport.WriteFOVFile(t, runFolder, "fov-2-scan-1.bin", []byte("data"))
	testsupport.WriteFOVFile(t, runFolder, "fov-2-scan-1.json", []byte("{}"))

	rec := &callbackRecorder{}
	handler := newTestHandler(t, runFolder, rec.callbacks())

	want := []string{"fov-1-scan-1", "fov-2-scan-1"}
	if len(rec.fovs) != len(want) || rec.fovs[0] != want[0] || rec.fovs[1] != want[1] {
		t.Fatalf("fov callbacks = %v, want %v", rec.fovs, want)
	}
	if !handler.Complete() {
		t.Fatal("run should be complete after replay")
	}
	if rec.runs != 1 {
		t.Fatalf("run callbacks = %d, want 1", rec.runs)
	}
}

func TestHandlerWritesRunLog(t *testing.T) {
	runFolder := testsupport.WriteRun(t, "run1", []testsupport.ManifestFOV{
		{RunOrder: 1, ScanCount: 1},
	})
	rec := &callbackRecorder{}
	handler := newTestHandler(t, runFolder, rec.callbacks())
	ctx := context.Background()

	binPath := testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-1.bin", []byte("data"))
	jsonPath := testsupport.WriteFOVFile(t, runFolder, "fov-1-scan-1.json", []byte("{}"))
	handler.OnCreated(ctx, binPath)
	handler.OnCreated(ctx, jsonPath)

	if filepath.Base(handler.RunLogPath()) != "run1_log.txt" {
		t.Fatalf("unexpected run log name %s", handler.RunLogPath())
	}
	data, err := os.ReadFile(handler.RunLogPath())
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	content := string(data)
	for _, line := range []string{
		"Extracting fov-1-scan-1",
		"Running per-fov callback on fov-1-scan-1",
		"All FOVs finished",
		"Running per-run callback on whole run",
	} {
		if !strings.Contains(content, line) {
			t.Fatalf("run log missing %q:\n%s", line, content)
		}
	}
}
