// Package envfile loads dotenv files from a project directory so adapter
// processes can inherit the project's environment variables.
package envfile

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Load reads the dotenv chain for a directory and environment. Files are
// applied in order, later files overriding earlier ones:
//
//	.env
//	.env.local
//	.env.<environment>
//	.env.<environment>.local
//
// Missing files are skipped. An empty environment loads only the first two.
func Load(dir, environment string) (map[string]string, error) {
	files := []string{".env", ".env.local"}
	if environment != "" {
		files = append(files, ".env."+environment, ".env."+environment+".local")
	}

	vars := make(map[string]string)
	for _, file := range files {
		content, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		if err := parseEnvFile(content, vars); err != nil {
			return nil, err
		}
	}
	return vars, nil
}

// parseEnvFile parses dotenv content into vars, overwriting existing keys.
// Supported syntax: KEY=value, optional "export " prefix, # comments, blank
// lines, single- or double-quoted values. Values may contain '='.
func parseEnvFile(content []byte, vars map[string]string) error {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		vars[key] = value
	}
	return scanner.Err()
}
