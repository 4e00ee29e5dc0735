package gatewayapp

import (
	"os"
	"strconv"
	"time"

	"github.com/apiforge/gateway/internal/listener"
)

// resolvePollInterval reads GATEWAY_CONFIG_POLL_INTERVAL (seconds),
// falling back to listener.DefaultPollInterval, matching the original's
// APIFY_CONFIG_POLL_INTERVAL env var.
func resolvePollInterval() time.Duration {
	raw := os.Getenv("GATEWAY_CONFIG_POLL_INTERVAL")
	if raw == "" {
		return listener.DefaultPollInterval
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return listener.DefaultPollInterval
	}
	return time.Duration(seconds) * time.Second
}
