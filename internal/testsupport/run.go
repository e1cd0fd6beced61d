package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// ManifestFOV mirrors one manifest entry for fixtures.
type ManifestFOV struct {
	RunOrder       int    `json:"runOrder"`
	ScanCount      int    `json:"scanCount"`
	StandardTarget string `json:"standardTarget,omitempty"`
}

// WriteRun creates a run folder named runName under a temp dir with a
// manifest listing the given FOVs, and returns the run folder path.
func WriteRun(t *testing.T, runName string, fovs []ManifestFOV) string {
	t.Helper()

	runFolder := filepath.Join(t.TempDir(), runName)
	if err := os.MkdirAll(runFolder, 0o755); err != nil {
		t.Fatalf("create run folder: %v", err)
	}

	doc := map[string]any{"fovs": fovs}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	manifestPath := filepath.Join(runFolder, runName+".json")
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return runFolder
}

// WriteFOVFile drops a FOV data file into the run folder. Content may be
// empty to simulate a zero-size file.
func WriteFOVFile(t *testing.T, runFolder, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(runFolder, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write fov file %s: %v", name, err)
	}
	return path
}
