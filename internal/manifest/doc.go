// Package manifest parses the run description document the instrument
// writes into each run folder and derives the expected FOV layout.
//
// A run folder named R contains R.json with a "fovs" array; each entry
// carries runOrder, scanCount, and optionally a standardTarget marking
// calibration points. One FOV identifier of the form
// fov-<runOrder>-scan-<scanIndex> is derived per scan index. Malformed
// entries are fatal: the watcher cannot track a run whose expected file
// set it cannot enumerate.
package manifest
