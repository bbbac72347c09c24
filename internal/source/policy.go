package source

import (
	"path/filepath"
	"strings"

	"meshvault/internal/config"
)

// ExtensionPolicy decides which file extensions are importable.
// Mesh and slicer-project formats are always allowed.
type ExtensionPolicy struct {
	AllowGCode bool
	AllowStep  bool
}

// PolicyFromConfig builds a policy from the import configuration.
func PolicyFromConfig(cfg config.ImportConfig) ExtensionPolicy {
	return ExtensionPolicy{AllowGCode: cfg.AllowGCode, AllowStep: cfg.AllowStep}
}

// Allowed reports whether ext (with or without a leading dot) may be imported.
func (p ExtensionPolicy) Allowed(ext string) bool {
	switch normalizeExt(ext) {
	case "stl", "obj", "3mf":
		return true
	case "gcode":
		return p.AllowGCode
	case "step", "stp":
		return p.AllowStep
	default:
		return false
	}
}

// Extension returns the lower-cased extension of path without the dot.
func Extension(path string) string {
	return normalizeExt(filepath.Ext(path))
}

// ModelName returns the base name of path without its extension.
func ModelName(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
