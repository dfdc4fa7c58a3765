package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/xycareh/gitbutler/internal/gitadapter"
)

// ErrCorruptSidecar is returned when the sidecar file exists but cannot be
// parsed as "<refname>:<sha>".
var ErrCorruptSidecar = fmt.Errorf("integration: sidecar file is malformed")

// Sidecar records the branch HEAD pointed at immediately before it first
// transitioned onto the integration ref.
//
// The file always holds a single "<refname>:<sha>" line and is parsed with
// a split-once on the first ":"; anything that doesn't yield exactly two
// non-empty parts is rejected as ErrCorruptSidecar.
type Sidecar struct {
	RefName plumbing.ReferenceName
	SHA     plumbing.Hash
}

func sidecarPath(gitDir string) string {
	return filepath.Join(gitDir, "integration")
}

// readSidecar reads the sidecar file, if present. Absence is not an error:
// it returns (nil, nil) when no sidecar has been written yet.
func readSidecar(gitDir string) (*Sidecar, error) {
	data, err := os.ReadFile(sidecarPath(gitDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("integration: read sidecar: %w", err)
	}

	line := strings.TrimSpace(string(data))
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrCorruptSidecar
	}
	return &Sidecar{RefName: plumbing.ReferenceName(parts[0]), SHA: plumbing.NewHash(parts[1])}, nil
}

// writeSidecarIfAbsent writes the sidecar the first time HEAD transitions
// from a foreign branch to the integration ref. A well-formed sidecar that
// already exists is left untouched, so only the earliest recorded branch
// survives later integration runs; a corrupt one is overwritten.
func writeSidecarIfAbsent(a gitadapter.Adapter, refName plumbing.ReferenceName, sha plumbing.Hash) error {
	existing, err := readSidecar(a.GitDir())
	if err != nil && err != ErrCorruptSidecar {
		return err
	}
	if existing != nil {
		return nil
	}

	line := fmt.Sprintf("%s:%s", refName, sha)
	if err := os.WriteFile(sidecarPath(a.GitDir()), []byte(line), 0o644); err != nil {
		return fmt.Errorf("integration: write sidecar: %w", err)
	}
	return nil
}
