package agentapi

import (
	"context"
	"fmt"
	"time"

	"github.com/tetherhq/cli/cmd/tether/cli/logging"
)

const probeTimeout = 500 * time.Millisecond

// Discover probes the given local ports for a responding agent server and
// returns every base URL that answered its health endpoint, in port order.
func Discover(ctx context.Context, ports []int) []string {
	var alive []string
	for _, port := range ports {
		baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := NewClient(baseURL).Health(probeCtx)
		cancel()
		if err != nil {
			logging.Debug(ctx, "port probe failed", "url", baseURL, "error", err)
			continue
		}
		alive = append(alive, baseURL)
	}
	return alive
}

// DiscoverFirst returns the first responding server, if any.
func DiscoverFirst(ctx context.Context, ports []int) (string, bool) {
	for _, port := range ports {
		baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := NewClient(baseURL).Health(probeCtx)
		cancel()
		if err == nil {
			return baseURL, true
		}
	}
	return "", false
}
