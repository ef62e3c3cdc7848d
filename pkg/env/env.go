// Package env reads the few settings needed before config.Load runs, such as
// the log format of the bootstrap logger.
package env

import (
	"os"
	"strings"
)

const prefix = "BAGFLOW_"

// Get returns BAGFLOW_<key>, then the bare key, then fallback.
func Get(key, fallback string) string {
	for _, name := range []string{prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
