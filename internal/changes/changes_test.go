package changes

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, name, body string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func newDetector(t *testing.T) (*Detector, string) {
	t.Helper()
	target := t.TempDir()
	return &Detector{
		TargetDir: target,
		CacheFile: filepath.Join(t.TempDir(), "hash_cache.yaml"),
		Logger:    zerolog.Nop(),
	}, target
}

func stagedNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestDiffIgnoresDeletions(t *testing.T) {
	previous := Digests{"a": "h1", "b": "h2"}
	current := Digests{"a": "h1", "c": "h3"}
	require.Equal(t, []string{"c"}, Diff(previous, current))
}

func TestDiffReportsModified(t *testing.T) {
	previous := Digests{"a": "h1", "b": "h2"}
	current := Digests{"a": "h1", "b": "h9"}
	require.Equal(t, []string{"b"}, Diff(previous, current))
	require.Empty(t, Diff(current, current))
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	d, target := newDetector(t)
	write(t, target, "a.sql", "select 1;")
	write(t, target, "sub/b.sql", "select 2;")

	first, err := d.Run()
	require.NoError(t, err)
	require.Equal(t, 2, first.Count())
	require.Equal(t, []string{"a.sql", "b.sql"}, stagedNames(t, first.StagingDir))

	second, err := d.Run()
	require.NoError(t, err)
	require.Equal(t, 0, second.Count())
	require.Empty(t, stagedNames(t, second.StagingDir))
}

func TestRunStagesOnlyChangedFiles(t *testing.T) {
	d, target := newDetector(t)
	a := write(t, target, "a.sql", "v1")
	write(t, target, "b.sql", "same")
	gone := write(t, target, "gone.sql", "bye")
	_, err := d.Run()
	require.NoError(t, err)

	write(t, target, "a.sql", "v2")
	write(t, target, "new/c.sql", "fresh")
	require.NoError(t, os.Remove(gone))

	res, err := d.Run()
	require.NoError(t, err)
	require.Equal(t, []string{a, filepath.Join(target, "new", "c.sql")}, res.Changed)
	require.Equal(t, []string{"a.sql", "c.sql"}, stagedNames(t, res.StagingDir))
	got, err := os.ReadFile(filepath.Join(res.StagingDir, "a.sql"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))
}

func TestRunFlattensAndOverwritesSameBaseName(t *testing.T) {
	d, target := newDetector(t)
	write(t, target, "x/conf.yaml", "one")
	write(t, target, "y/conf.yaml", "two")

	res, err := d.Run()
	require.NoError(t, err)
	require.Equal(t, 2, res.Count())
	require.Equal(t, []string{"conf.yaml"}, stagedNames(t, res.StagingDir))
}

func TestHashSkipsStagingCacheAndIgnored(t *testing.T) {
	d, target := newDetector(t)
	d.CacheFile = filepath.Join(target, "hash_cache.yaml")
	d.Ignore = []string{"**/*.log"}
	keep := write(t, target, "keep.txt", "k")
	write(t, target, "temp/staged.txt", "s")
	write(t, target, "logs/app.log", "noise")
	write(t, target, "hash_cache.yaml", "{}")

	got, err := d.Hash()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Contains(t, got, keep)
}

func TestRunRelativeTargetIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	write(t, dir, "a.sql", "select 1;")
	d := &Detector{TargetDir: ".", CacheFile: filepath.Join(t.TempDir(), "hash_cache.yaml"), Logger: zerolog.Nop()}

	first, err := d.Run()
	require.NoError(t, err)
	require.Equal(t, []string{"a.sql"}, first.Changed)

	second, err := d.Run()
	require.NoError(t, err)
	require.Empty(t, second.Changed)
	require.Empty(t, stagedNames(t, second.StagingDir))
}

func TestHashSkipsNestedStagingDir(t *testing.T) {
	d, target := newDetector(t)
	keep := write(t, target, "sub/keep.txt", "k")
	write(t, target, "sub/temp/old.txt", "o")

	got, err := d.Hash()
	require.NoError(t, err)
	require.Equal(t, Digests{keep: got[keep]}, got)
}

func TestRunSkipsExcludedFiles(t *testing.T) {
	d, target := newDetector(t)
	write(t, target, "app.sql", "a")
	d.Exclude = []string{write(t, target, "history.db", "db"), write(t, target, "rdeploy.log", "log"), ""}

	res, err := d.Run()
	require.NoError(t, err)
	require.Equal(t, []string{"app.sql"}, stagedNames(t, res.StagingDir))

	write(t, target, "history.db", "db grew")
	write(t, target, "rdeploy.log", "log grew")
	res, err = d.Run()
	require.NoError(t, err)
	require.Empty(t, res.Changed)
}

func TestHashMissingTarget(t *testing.T) {
	d := &Detector{TargetDir: filepath.Join(t.TempDir(), "missing"), Logger: zerolog.Nop()}
	_, err := d.Hash()
	var fsErr *FsError
	require.ErrorAs(t, err, &fsErr)
}

func TestCorruptCacheTreatedAsEmpty(t *testing.T) {
	d, target := newDetector(t)
	write(t, target, "a.txt", "a")
	require.NoError(t, os.WriteFile(d.CacheFile, []byte("{{{{ not yaml"), 0o644))

	res, err := d.Run()
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
}

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	in := Digests{
		"/srv/a b/c.txt":     "d41d8cd98f00b204e9800998ecf8427e",
		"rel/x:y.txt":        "12345678901234567890123456789012",
		"weird/#hash.conf":   "1e100000000000000000000000000000",
		"unicode/файл.txt":   "00000000000000000000000000000000",
		"dash/- leading.txt": "ffffffffffffffffffffffffffffffff",
	}
	require.NoError(t, SaveCache(path, in))
	require.Equal(t, in, LoadCache(path, zerolog.Nop()))
}

func TestFileDigestIsStable(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a", "same bytes")
	b := write(t, dir, "b", "same bytes")
	c := write(t, dir, "c", "other bytes")
	da, err := FileDigest(a)
	require.NoError(t, err)
	db, err := FileDigest(b)
	require.NoError(t, err)
	dc, err := FileDigest(c)
	require.NoError(t, err)
	require.Equal(t, da, db)
	require.NotEqual(t, da, dc)
	require.Len(t, da, 32)
}

// testChdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PWD", dir)
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			panic("testChdir: restoring working directory: " + err.Error())
		}
	})
}
