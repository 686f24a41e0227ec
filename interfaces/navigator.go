package interfaces

import (
	"context"

	"github.com/status-im/market-hydrator/models"
)

//go:generate mockgen -destination=mocks/navigator.go . Navigator

// Navigator changes the active route. Navigation is optimistic: it is requested
// before the route's data is known to be available.
type Navigator interface {
	Navigate(ctx context.Context, route models.Domain) error
}
