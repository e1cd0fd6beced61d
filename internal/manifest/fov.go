package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

// FOVID formats the canonical FOV identifier for a run order and scan index.
func FOVID(runOrder, scanIndex int) string {
	return fmt.Sprintf("fov-%d-scan-%d", runOrder, scanIndex)
}

// ParseFOVID splits an identifier of the form fov-<n>-scan-<s> into its
// run order and scan index. ok is false for anything else.
func ParseFOVID(id string) (runOrder, scanIndex int, ok bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 4 || parts[0] != "fov" || parts[2] != "scan" {
		return 0, 0, false
	}
	runOrder, err := strconv.Atoi(parts[1])
	if err != nil || runOrder <= 0 {
		return 0, 0, false
	}
	scanIndex, err = strconv.Atoi(parts[3])
	if err != nil || scanIndex <= 0 {
		return 0, 0, false
	}
	return runOrder, scanIndex, true
}

// MaxRunOrder returns the highest runOrder in the run, which identifies
// the final FOV of the acquisition.
func (r *Run) MaxRunOrder() int {
	max := 0
	for _, fov := range r.FOVs {
		if fov.RunOrder > max {
			max = fov.RunOrder
		}
	}
	return max
}
