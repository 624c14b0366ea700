package env

import (
	"os"
	"strings"
)

// Prefix namespaces every variable the inventory services read.
const Prefix = "INVENTORY_"

// Get returns INVENTORY_<key>, then the bare key, then fallback. Keys may be
// given with or without the prefix.
func Get(key, fallback string) string {
	bare := strings.TrimPrefix(key, Prefix)
	for _, name := range []string{Prefix + bare, bare} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
