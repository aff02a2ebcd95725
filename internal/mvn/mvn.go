// Package mvn switches the active Maven settings.xml between saved profiles.
package mvn

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv is consulted when no maven_home is configured.
const HomeEnv = "MAVEN_HOME"

var ErrNoMavenHome = errors.New("maven.maven_home is not set and $MAVEN_HOME is empty")

// Paths returns the settings file Switch would copy for profile and the file it
// replaces. An empty profile selects the default settings.xml.
func Paths(mavenHome, profile string) (source, target string) {
	base := filepath.Join(mavenHome, "conf", "settings")
	target = filepath.Join(mavenHome, "conf", "settings.xml")
	if p := strings.TrimSpace(profile); p != "" {
		return filepath.Join(base, "settings-"+p+".xml"), target
	}
	return filepath.Join(base, "settings.xml"), target
}

// ResolveHome picks the configured Maven home, falling back to $MAVEN_HOME.
func ResolveHome(configured string) (string, error) {
	if h := strings.TrimSpace(configured); h != "" {
		return h, nil
	}
	if h := strings.TrimSpace(os.Getenv(HomeEnv)); h != "" {
		return h, nil
	}
	return "", ErrNoMavenHome
}

// Switch replaces conf/settings.xml under mavenHome with the saved profile and
// returns the source it copied. The current settings.xml is left alone when the
// profile does not exist.
func Switch(mavenHome, profile string) (string, error) {
	source, target := Paths(mavenHome, profile)
	src, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("settings source %s: %w", source, err)
	}
	defer src.Close()

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove %s: %w", target, err)
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("copy %s -> %s: %w", source, target, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", target, err)
	}
	return source, nil
}
