package store

import (
	"context"

	"signal_bridge/internal/models"
)

// Store: граница хранения: дефолты, TP/SL по символам и снапшоты позиций.
// Ядро не знает, файл это, база или память.
type Store interface {
	Settings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error

	// Protection: конфиг символа, при отсутствии глобальный (symbol == "").
	Protection(ctx context.Context, symbol string) (models.ProtectionConfig, error)
	SaveProtection(ctx context.Context, c models.ProtectionConfig) error

	SavePosition(ctx context.Context, p models.Position) error
	DeletePosition(ctx context.Context, key string) error
	Positions(ctx context.Context) ([]models.Position, error)
}
