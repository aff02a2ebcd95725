package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

// readArchive extracts names and file contents with the standard library reader.
func readArchive(t *testing.T, path string) (dirs []string, files map[string]string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	files = map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		switch hdr.Typeflag {
		case tar.TypeDir:
			dirs = append(dirs, hdr.Name)
		case tar.TypeReg:
			b, err := io.ReadAll(tr)
			require.NoError(t, err)
			files[hdr.Name] = string(b)
		default:
			t.Fatalf("unexpected entry %s type %c", hdr.Name, hdr.Typeflag)
		}
	}
	return dirs, files
}

var tree = map[string]string{
	"app.jar":           "jar-bytes",
	"lib/dep.jar":       "dep",
	"lib/nested/x.conf": "key=value\n",
	"empty.txt":         "",
}

func TestDirectoryFlattensWithoutRootName(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, tree)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "logs"), 0o755))
	out := filepath.Join(t.TempDir(), "apps.tar.gz")

	require.NoError(t, Directory(src, out, ""))
	dirs, files := readArchive(t, out)
	require.Equal(t, tree, files)
	require.ElementsMatch(t, []string{"lib/", "lib/nested/", "logs/"}, dirs)
}

func TestDirectoryNestsUnderRootName(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, tree)
	out := filepath.Join(t.TempDir(), "cfg.tar.gz")

	require.NoError(t, Directory(src, out, "cfgHome"))
	dirs, files := readArchive(t, out)
	want := map[string]string{}
	for name, body := range tree {
		want["cfgHome/"+name] = body
	}
	require.Equal(t, want, files)
	require.ElementsMatch(t, []string{"cfgHome/", "cfgHome/lib/", "cfgHome/lib/nested/"}, dirs)
}

func TestDirectoryMissingSource(t *testing.T) {
	out := filepath.Join(t.TempDir(), "apps.tar.gz")
	err := Directory(filepath.Join(t.TempDir(), "missing"), out, "")
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr))
}

func TestDirectoryOverwritesExistingArchive(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"only.txt": "fresh"})
	out := filepath.Join(t.TempDir(), "apps.tar.gz")
	require.NoError(t, os.WriteFile(out, []byte("not a gzip stream at all"), 0o644))

	require.NoError(t, Directory(src, out, ""))
	_, files := readArchive(t, out)
	require.Equal(t, map[string]string{"only.txt": "fresh"}, files)
}

func TestDirectorySkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"real.txt": "data"})
	require.NoError(t, os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")))
	out := filepath.Join(t.TempDir(), "apps.tar.gz")

	require.NoError(t, Directory(src, out, ""))
	_, files := readArchive(t, out)
	require.Equal(t, map[string]string{"real.txt": "data"}, files)
}
