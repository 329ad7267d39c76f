package workspace

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"tailor/internal/services"
)

// InstructionFileName is the fixed name of every stage's instruction artifact.
const InstructionFileName = "INSTRUCTIONS.md"

const (
	lockFileName = ".lock"
	historyDir   = "history"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Layout resolves workspace paths beneath Root.
type Layout struct {
	Root string
}

// New returns a layout rooted at root.
func New(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

// ValidateSegment reports whether value is usable as a single path segment
// (job ID, stage name, artifact name).
func ValidateSegment(kind, value string) error {
	if value == "." || value == ".." || !segmentPattern.MatchString(value) {
		return services.Wrap(services.ErrValidation, "", "workspace", fmt.Sprintf("invalid %s %q", kind, value), nil)
	}
	return nil
}

// JobDir returns {root}/{jobID}.
func (l Layout) JobDir(jobID string) string {
	return filepath.Join(l.Root, jobID)
}

// StageDir returns {root}/{jobID}/{stage}.
func (l Layout) StageDir(jobID, stage string) string {
	return filepath.Join(l.Root, jobID, stage)
}

// InstructionPath returns the absolute instruction artifact path.
func (l Layout) InstructionPath(jobID, stage string) string {
	return filepath.Join(l.StageDir(jobID, stage), InstructionFileName)
}

// OutputPath returns the absolute output artifact path.
func (l Layout) OutputPath(jobID, stage, artifact string) string {
	return filepath.Join(l.StageDir(jobID, stage), artifact)
}

// RelInstructionPath returns the instruction path relative to the workspace root.
func RelInstructionPath(jobID, stage string) string {
	return filepath.ToSlash(filepath.Join(jobID, stage, InstructionFileName))
}

// RelOutputPath returns the output path relative to the workspace root.
func RelOutputPath(jobID, stage, artifact string) string {
	return filepath.ToSlash(filepath.Join(jobID, stage, artifact))
}

// LockPath returns the per-job lock file shared by the daemon and operator tooling.
func (l Layout) LockPath(jobID string) string {
	return filepath.Join(l.JobDir(jobID), lockFileName)
}

// HistoryDir returns the archive directory for a stage.
func (l Layout) HistoryDir(jobID, stage string) string {
	return filepath.Join(l.StageDir(jobID, stage), historyDir)
}

// Contains reports whether path resolves inside the workspace root.
func (l Layout) Contains(path string) bool {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Resolve splits a path under the root into job ID and stage name. ok is false
// for paths outside a stage directory.
func (l Layout) Resolve(path string) (jobID, stage, name string, ok bool) {
	if !l.Contains(path) {
		return "", "", "", false
	}
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return "", "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch len(parts) {
	case 2:
		return parts[0], parts[1], "", true
	case 3:
		return parts[0], parts[1], parts[2], true
	default:
		return "", "", "", false
	}
}
