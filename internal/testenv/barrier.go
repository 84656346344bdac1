package testenv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// watchedFiles are the files lens writes under its data directory.
var watchedFiles = []string{"session.db", "errors.log", "config.toml"}

type fileState struct {
	exists bool
	size   int64
	mtime  time.Time
}

// ProdBarrier records the state of the real data directory before tests
// run. Check reports any file the tests created, changed or removed.
type ProdBarrier struct {
	realDataDir string
	before      map[string]fileState
}

// DefaultProdDataDir returns ~/.lens, ignoring LENS_DATA_DIR so it always
// points at the real directory.
func DefaultProdDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lens")
}

// NewProdBarrier snapshots realDataDir. Create it before LENS_DATA_DIR
// is overridden.
func NewProdBarrier(realDataDir string) *ProdBarrier {
	b := &ProdBarrier{realDataDir: realDataDir, before: make(map[string]fileState)}
	for _, name := range watchedFiles {
		b.before[name] = stat(filepath.Join(realDataDir, name))
	}
	return b
}

// Check returns a non-empty message if a watched file changed.
func (b *ProdBarrier) Check() string {
	var violations []string
	for _, name := range watchedFiles {
		was := b.before[name]
		now := stat(filepath.Join(b.realDataDir, name))
		switch {
		case !was.exists && now.exists:
			violations = append(violations, fmt.Sprintf("test created %s in prod data dir", name))
		case was.exists && !now.exists:
			violations = append(violations, fmt.Sprintf("test deleted %s from prod data dir", name))
		case was.exists && (now.size != was.size || !now.mtime.Equal(was.mtime)):
			violations = append(violations, fmt.Sprintf(
				"test modified %s in prod data dir (size %d→%d, mtime %s→%s)",
				name, was.size, now.size,
				was.mtime.Format(time.RFC3339Nano), now.mtime.Format(time.RFC3339Nano)))
		}
	}
	if len(violations) == 0 {
		return ""
	}
	return "PROD DATA BARRIER FAILED:\n  " + strings.Join(violations, "\n  ")
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, size: info.Size(), mtime: info.ModTime()}
}
