package instance

import (
	"os"

	"github.com/angelmondragon/budgetdesk-backend/pkg/env"
)

// GetID identifies this process in logs. BUDGETDESK_WORKER_ID wins, then
// DYNO, then the hostname.
func GetID() string {
	if id := env.First("BUDGETDESK_WORKER_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
