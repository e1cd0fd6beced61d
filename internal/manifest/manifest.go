package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MolyTarget is the standardTarget value marking calibration FOVs.
const MolyTarget = "Molybdenum Foil"

// FOV is one expected field of view derived from a manifest entry.
type FOV struct {
	ID        string
	RunOrder  int
	ScanIndex int
	// Moly reports whether this FOV is a calibration point excluded
	// from processing and completion accounting.
	Moly bool
}

// Run is the expected structure of one acquisition run.
type Run struct {
	// Name is the run folder basename.
	Name string
	// FOVs lists every expected FOV in manifest order.
	FOVs []FOV
}

type manifestEntry struct {
	RunOrder       int    `json:"runOrder"`
	ScanCount      int    `json:"scanCount"`
	StandardTarget string `json:"standardTarget"`
}

type manifestDoc struct {
	FOVs []manifestEntry `json:"fovs"`
}

// Path returns the manifest location for a run folder:
// `<runFolder>/<basename>.json`.
func Path(runFolder string) string {
	name := filepath.Base(filepath.Clean(runFolder))
	return filepath.Join(runFolder, name+".json")
}

// Load reads and parses the run manifest inside runFolder.
// An entry missing a positive runOrder or scanCount is a structural error.
func Load(runFolder string) (*Run, error) {
	path := Path(runFolder)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run manifest: %w", err)
	}

	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse run manifest %s: %w", path, err)
	}

	run := &Run{Name: filepath.Base(filepath.Clean(runFolder))}
	for i, entry := range doc.FOVs {
		if entry.RunOrder <= 0 || entry.ScanCount <= 0 {
			return nil, fmt.Errorf("run manifest %s: entry %d lacks runOrder/scanCount", path, i)
		}
		moly := entry.StandardTarget == MolyTarget
		for scan := 1; scan <= entry.ScanCount; scan++ {
			run.FOVs = append(run.FOVs, FOV{
				ID:        FOVID(entry.RunOrder, scan),
				RunOrder:  entry.RunOrder,
				ScanIndex: scan,
				Moly:      moly,
			})
		}
	}
	return run, nil
}

// TotalFOVs returns the number of expected FOV identifiers.
func (r *Run) TotalFOVs() int {
	return len(r.FOVs)
}

// MolyFOVs returns the identifiers of calibration FOVs.
func (r *Run) MolyFOVs() []string {
	var ids []string
	for _, fov := range r.FOVs {
		if fov.Moly {
			ids = append(ids, fov.ID)
		}
	}
	return ids
}
