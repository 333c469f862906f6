package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/lingocast/lingocast/internal/resilience"
	"github.com/lingocast/lingocast/internal/store"
)

// StoreChecker probes the session store with a one-item list. A store that
// cannot answer a trivial read is not ready to serve sessions.
func StoreChecker(sessions store.SessionStore) Checker {
	return Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			_, _, err := sessions.ListActiveSessions(ctx, 1, "")
			return err
		},
	}
}

// DegradationChecker reports failure while any service is marked degraded,
// naming the degraded services in the error.
func DegradationChecker(dm *resilience.DegradationManager) Checker {
	return Checker{
		Name: "services",
		Check: func(_ context.Context) error {
			h := dm.SystemHealth()
			if h.Status == "healthy" {
				return nil
			}
			return fmt.Errorf("degraded: %s", strings.Join(h.DegradedServices, ", "))
		},
	}
}
