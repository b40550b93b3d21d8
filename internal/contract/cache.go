package contract

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"signal_bridge/internal/models"
)

const DefaultTTL = 5 * time.Minute

// Fetcher: источник сырых метаданных контракта (REST биржи).
type Fetcher interface {
	ContractInfo(ctx context.Context, symbol string) (map[string]any, error)
}

type entry struct {
	filters   models.ContractFilters
	expiresAt time.Time
}

// Cache хранит фильтры по символу. Промах запускает ровно один запрос на символ,
// конкурентные вызовы ждут общий результат.
type Cache struct {
	fetch Fetcher
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time

	mu    sync.RWMutex
	items map[string]entry
	group singleflight.Group
}

func NewCache(fetch Fetcher, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		fetch: fetch,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
		items: make(map[string]entry),
	}
}

func (c *Cache) Get(ctx context.Context, symbol string) (models.ContractFilters, error) {
	c.mu.RLock()
	e, ok := c.items[symbol]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		return e.filters, nil
	}

	ch := c.group.DoChan(symbol, func() (any, error) {
		// запрос не должен обрываться из-за отмены первого вызывающего
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()

		raw, err := c.fetch.ContractInfo(fctx, symbol)
		if err != nil {
			return models.ContractFilters{}, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		if raw["symbol"] == nil {
			raw["symbol"] = symbol
		}
		f, err := Normalize(raw)
		if err != nil {
			return models.ContractFilters{}, err
		}

		c.mu.Lock()
		c.items[symbol] = entry{filters: f, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()

		c.log.Info("contract filters refreshed",
			zap.String("symbol", symbol),
			zap.Stringer("step", f.StepSize),
			zap.Stringer("min_qty", f.MinQty),
			zap.Stringer("tick", f.TickSize),
		)
		return f, nil
	})

	select {
	case <-ctx.Done():
		return models.ContractFilters{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.ContractFilters{}, res.Err
		}
		return res.Val.(models.ContractFilters), nil
	}
}

// Invalidate: сбросить символ, следующий Get сходит на биржу.
func (c *Cache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.items, symbol)
	c.mu.Unlock()
}
