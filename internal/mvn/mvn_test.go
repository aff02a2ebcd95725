package mvn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mavenHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	dir := filepath.Join(home, "conf", "settings")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.xml"), []byte("<default/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings-corp.xml"), []byte("<corp/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(home, "conf", "settings.xml"), []byte("<old/>"), 0o644))
	return home
}

func readSettings(t *testing.T, home string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(home, "conf", "settings.xml"))
	require.NoError(t, err)
	return string(b)
}

func TestSwitchProfile(t *testing.T) {
	home := mavenHome(t)
	src, err := Switch(home, "corp")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "conf", "settings", "settings-corp.xml"), src)
	require.Equal(t, "<corp/>", readSettings(t, home))
}

func TestSwitchDefault(t *testing.T) {
	home := mavenHome(t)
	_, err := Switch(home, "corp")
	require.NoError(t, err)
	_, err = Switch(home, "")
	require.NoError(t, err)
	require.Equal(t, "<default/>", readSettings(t, home))
}

func TestSwitchMissingProfileKeepsSettings(t *testing.T) {
	home := mavenHome(t)
	_, err := Switch(home, "nope")
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, "<old/>", readSettings(t, home))
}

func TestSwitchWithoutExistingTarget(t *testing.T) {
	home := mavenHome(t)
	require.NoError(t, os.Remove(filepath.Join(home, "conf", "settings.xml")))
	_, err := Switch(home, "corp")
	require.NoError(t, err)
	require.Equal(t, "<corp/>", readSettings(t, home))
}

func TestResolveHome(t *testing.T) {
	t.Setenv(HomeEnv, "")
	_, err := ResolveHome("")
	require.ErrorIs(t, err, ErrNoMavenHome)

	t.Setenv(HomeEnv, "/opt/maven")
	h, err := ResolveHome("")
	require.NoError(t, err)
	require.Equal(t, "/opt/maven", h)

	h, err = ResolveHome("/usr/share/maven")
	require.NoError(t, err)
	require.Equal(t, "/usr/share/maven", h)
}
