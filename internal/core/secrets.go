package core

import (
	"bufio"
	"os"
	"strings"
)

const (
	SecretsFileName = "secrets.env"
	PasswordEnv     = "DEPLOY_SSH_PASSWORD"
)

// LoadSecretsEnv reads KEY=VALUE pairs from path. Lines starting with # are
// ignored and surrounding quotes are stripped from values. A missing file is not an error.
func LoadSecretsEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}, nil // not fatal if missing
	}
	defer f.Close()
	out := map[string]string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
				v = v[1 : len(v)-1]
			}
			out[k] = v
		}
	}
	return out, s.Err()
}
