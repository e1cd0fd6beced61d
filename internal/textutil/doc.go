// Package textutil provides small string helpers shared across fovwatch,
// chiefly natural (numeric-aware) ordering of instrument file names.
package textutil
