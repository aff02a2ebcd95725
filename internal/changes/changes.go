// Package changes finds files whose content changed since the previous run and
// copies them into a staging directory for manual inspection.
package changes

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// StagingDirName is the subdirectory of the target that receives changed files.
// Anything under a path segment of this name is never hashed.
const StagingDirName = "temp"

// Digests maps a file path to the hex digest of its content.
type Digests map[string]string

// FsError reports a local filesystem failure that aborts detection.
type FsError struct {
	Op   string
	Path string
	Err  error
}

func (e *FsError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }
func (e *FsError) Unwrap() error { return e.Err }

// Detector compares TargetDir against the digests stored in CacheFile.
type Detector struct {
	TargetDir string
	CacheFile string
	// Ignore holds doublestar patterns matched against slash paths relative to TargetDir.
	Ignore []string
	// Exclude names files the tool writes itself, such as the history database
	// and the log file. They are never hashed, like CacheFile.
	Exclude []string
	Logger zerolog.Logger
}

type Result struct {
	Changed    []string
	StagingDir string
}

func (r Result) Count() int { return len(r.Changed) }

// Run hashes the tree, stages every new or modified file and rewrites the cache.
// Deleted files are not reported.
func (d *Detector) Run() (Result, error) {
	previous := LoadCache(d.CacheFile, d.Logger)

	current, err := d.Hash()
	if err != nil {
		return Result{}, err
	}
	changed := Diff(previous, current)

	staging := filepath.Join(d.TargetDir, StagingDirName)
	if err := os.RemoveAll(staging); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Result{}, &FsError{Op: "clear staging dir", Path: staging, Err: err}
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Result{}, &FsError{Op: "create staging dir", Path: staging, Err: err}
	}

	for _, p := range changed {
		dest := filepath.Join(staging, filepath.Base(p))
		if err := copyFile(p, dest); err != nil {
			d.Logger.Error().Err(err).Str("src", p).Str("dest", dest).Msg("copy changed file")
		}
	}

	if err := SaveCache(d.CacheFile, current); err != nil {
		d.Logger.Error().Err(err).Str("cache", d.CacheFile).Msg("save digest cache")
	}
	return Result{Changed: changed, StagingDir: staging}, nil
}

// Hash walks TargetDir and digests every regular file outside any directory
// named StagingDirName, excluding CacheFile, Exclude and ignored patterns.
func (d *Detector) Hash() (Digests, error) {
	skip := map[string]bool{}
	for _, p := range append([]string{d.CacheFile}, d.Exclude...) {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			skip[abs] = true
		}
	}
	out := Digests{}
	err := filepath.WalkDir(d.TargetDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == d.TargetDir {
				return &FsError{Op: "walk", Path: p, Err: err}
			}
			d.Logger.Warn().Err(err).Str("path", p).Msg("skip unreadable entry")
			return nil
		}
		if entry.IsDir() {
			if p != d.TargetDir && entry.Name() == StagingDirName {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if abs, err := filepath.Abs(p); err == nil && skip[abs] {
			return nil
		}
		if d.ignored(p) {
			return nil
		}
		sum, err := FileDigest(p)
		if err != nil {
			d.Logger.Warn().Err(err).Str("path", p).Msg("skip unreadable file")
			return nil
		}
		out[p] = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Detector) ignored(p string) bool {
	if len(d.Ignore) == 0 {
		return false
	}
	rel, err := filepath.Rel(d.TargetDir, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range d.Ignore {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// FileDigest streams a file through MD5 and returns the lowercase hex sum.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Diff returns the sorted paths of current that are missing from previous or
// carry a different digest there. Paths only present in previous are ignored.
func Diff(previous, current Digests) []string {
	var changed []string
	for p, sum := range current {
		if old, ok := previous[p]; !ok || old != sum {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return changed
}

// LoadCache reads the digest cache. A missing or malformed file yields an empty map.
func LoadCache(path string, logger zerolog.Logger) Digests {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("cache", path).Msg("read digest cache")
		}
		return Digests{}
	}
	var out Digests
	if err := yaml.Unmarshal(data, &out); err != nil {
		logger.Warn().Err(err).Str("cache", path).Msg("digest cache is corrupt, starting fresh")
		return Digests{}
	}
	if out == nil {
		out = Digests{}
	}
	return out
}

// SaveCache overwrites path with the given digests.
func SaveCache(path string, digests Digests) error {
	data, err := yaml.Marshal(digests)
	if err != nil {
		return fmt.Errorf("marshal digest cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write digest cache: %w", err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
