package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StdoutTarget as output directory sends documents to stdout.
const StdoutTarget = "-"

// stdout is swapped by tests.
var stdout io.Writer = os.Stdout

// WriteDocument writes data to dir/fileName, or to stdout when dir is "-",
// and returns where it went. The file is written to a temporary name in
// dir and renamed into place, so a failed write never leaves a partial
// document behind.
func WriteDocument(dir, fileName string, data []byte) (string, error) {
	if dir == StdoutTarget {
		if _, err := stdout.Write(data); err != nil {
			return "", fmt.Errorf("writing document to stdout: %w", err)
		}
		return StdoutTarget, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	target := filepath.Join(dir, fileName)

	tmp, err := os.CreateTemp(dir, "."+fileName+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temporary file for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("writing %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("syncing %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("closing %s: %w", target, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return "", fmt.Errorf("setting permissions on %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return "", fmt.Errorf("moving document into place at %s: %w", target, err)
	}
	return target, nil
}
