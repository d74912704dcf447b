package cli

import (
	"os"
	"strings"

	"github.com/terrazzo-io/tzctl/pkg/state"
	"github.com/terrazzo-io/tzctl/pkg/state/backend"
)

const (
	// EnvStateBackend selects the backend type.
	EnvStateBackend = "TZCTL_STATE_BACKEND"

	// EnvStatePrefix prefixes backend-specific settings, e.g.
	// TZCTL_STATE_PATH, TZCTL_STATE_BUCKET.
	EnvStatePrefix = "TZCTL_STATE_"
)

// createStateManagerWithConfig creates a state manager with the given backend
// type and config.
//
// Configuration precedence (highest to lowest):
//  1. CLI flags (--backend, --backend-config)
//  2. Environment variables (TZCTL_STATE_BACKEND, TZCTL_STATE_*)
//  3. Hardcoded defaults (local backend with ~/.tzctl/state)
func createStateManagerWithConfig(backendType string, backendConfig []string) (state.Manager, error) {
	// Start with hardcoded default
	effectiveBackend := "local"
	effectiveConfig := make(map[string]string)

	// Apply environment variables
	if envBackend := os.Getenv(EnvStateBackend); envBackend != "" {
		effectiveBackend = envBackend
	}

	// Check for backend-specific env vars (TZCTL_STATE_PATH, TZCTL_STATE_BUCKET, etc.)
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, EnvStatePrefix) && !strings.HasPrefix(env, EnvStateBackend) {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				// Convert TZCTL_STATE_PATH to "path", TZCTL_STATE_BUCKET to "bucket", etc.
				key := strings.ToLower(strings.TrimPrefix(parts[0], EnvStatePrefix))
				effectiveConfig[key] = parts[1]
			}
		}
	}

	// Apply CLI flags (highest priority)
	if backendType != "" {
		effectiveBackend = backendType
	}

	for _, c := range backendConfig {
		parts := strings.SplitN(c, "=", 2)
		if len(parts) == 2 {
			effectiveConfig[parts[0]] = parts[1]
		}
	}

	config := backend.Config{
		Type:   effectiveBackend,
		Config: effectiveConfig,
	}

	return state.NewManagerFromConfig(config)
}
