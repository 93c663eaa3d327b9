package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetVersion returns the version from the environment (set by CI/CD) or
// the VERSION file, falling back to a development placeholder
func GetVersion() string {
	if envVersion := os.Getenv("APP_VERSION"); envVersion != "" {
		return envVersion
	}

	for _, versionPath := range []string{"VERSION", filepath.Join("..", "VERSION")} {
		if content, err := os.ReadFile(versionPath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	return "0.1.0-dev"
}
