package daemon

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ftermdev/fterm/internal/errors"
)

// projectMarker must exist in the working directory before anything is
// spawned. Running the tool outside a project produces confusing
// interactive prompts on stdout that break the machine protocol.
const projectMarker = "pubspec.yaml"

// toolBinary is the name searched in PATH when no explicit path is given.
const toolBinary = "flutter"

// ValidateProjectDir checks that dir is a usable project root.
func ValidateProjectDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &errors.ProjectDirError{Dir: dir, Reason: "directory does not exist"}
	}

	if !info.IsDir() {
		return &errors.ProjectDirError{Dir: dir, Reason: "not a directory"}
	}

	marker := filepath.Join(dir, projectMarker)

	markerInfo, err := os.Stat(marker)
	if err != nil {
		return &errors.ProjectDirError{Dir: dir, Reason: "missing " + projectMarker}
	}

	if markerInfo.IsDir() {
		return &errors.ProjectDirError{Dir: dir, Reason: projectMarker + " is not a file"}
	}

	return nil
}

// findTool locates the tool binary. An explicit path is used as-is and
// is the only candidate when provided; otherwise PATH and a few common
// install locations are searched.
func findTool(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}

		return "", &errors.ToolNotFoundError{SearchedPaths: []string{explicit}}
	}

	searched := make([]string, 0, 4)

	if path, err := exec.LookPath(toolBinary); err == nil {
		return path, nil
	}

	searched = append(searched, "$PATH")

	common := []string{
		"/usr/local/bin/" + toolBinary,
	}

	if home, err := os.UserHomeDir(); err == nil {
		common = append(common,
			filepath.Join(home, "flutter/bin", toolBinary),
			filepath.Join(home, "fvm/default/bin", toolBinary),
		)
	}

	for _, path := range common {
		searched = append(searched, path)

		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", &errors.ToolNotFoundError{SearchedPaths: searched}
}

// BuildRunArgs constructs the machine-mode run invocation.
func BuildRunArgs(cfg Config) []string {
	args := []string{"run", "--machine"}

	if cfg.DeviceID != "" {
		args = append(args, "-d", cfg.DeviceID)
	}

	args = append(args, cfg.ExtraArgs...)

	return args
}
