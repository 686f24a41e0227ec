package interfaces

import (
	"context"

	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/transform"
)

//go:generate mockgen -destination=mocks/transformer.go . Transformer

// Transformer re-denominates records into every supported currency
type Transformer interface {
	Transform(ctx context.Context, req transform.Request) (transform.Response, error)
	Targets() []models.Currency
}
