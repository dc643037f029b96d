package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organization in the system with minimal information
// needed for request-scoped operations.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Subdomain string    `json:"subdomain"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	// Operator marks the platform operator organization, the privileged
	// tenant that owns the plan catalog and sells subscriptions to the
	// other organizations.
	Operator  bool      `json:"operator"`
	CreatedAt time.Time `json:"created_at"`
}
