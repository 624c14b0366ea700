package instance

import (
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// GetID identifies this replica in logs and lock values. INVENTORY_WORKER_ID
// wins over the hostname; the pid is the last resort.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("INVENTORY_WORKER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "inventory-" + strconv.Itoa(os.Getpid())
}

// OwnerToken is unique per call and names the replica that minted it, so a
// held lock can be traced back to its holder.
func OwnerToken() string {
	return GetID() + "/" + uuid.NewString()
}
