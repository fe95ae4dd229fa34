package instance

import "github.com/angelmondragon/appointly-backend/pkg/env"

// GetID names the running process for logs and lock ownership. WORKER_ID
// wins over the platform-provided DYNO; "local" is the fallback.
func GetID() string {
	return env.First("local", "WORKER_ID", "DYNO")
}
