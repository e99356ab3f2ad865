package utils

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// GetServerID returns a stable identifier for the current instance.
// Logic:
// 1. Return provided override if not empty.
// 2. Try OS hostname.
// 3. Generate a random one as fallback.
func GetServerID(override string) string {
	if override != "" {
		return override
	}

	hostname, err := os.Hostname()
	if err == nil && hostname != "" && hostname != "localhost" {
		cleanHost := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
				return r
			}
			return -1
		}, hostname)
		if cleanHost != "" {
			return "scorecache-" + cleanHost
		}
	}

	return "scorecache-" + uuid.New().String()[:8]
}
