package interfaces

import (
	"context"
	"time"

	"github.com/MatusBehul/veloryn/internal/models"
)

// MarketDataProvider gathers the market data used to build an analysis prompt.
type MarketDataProvider interface {
	Snapshot(ctx context.Context, ticker string, day time.Time) (*models.MarketSnapshot, error)
}

// PromotionPublisher hands promotion messages to the message queue.
type PromotionPublisher interface {
	PublishPromotion(ctx context.Context, msg *models.PromotionMessage) error
	Close() error
}
