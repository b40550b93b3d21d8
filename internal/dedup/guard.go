package dedup

import (
	"sync"
	"time"

	"signal_bridge/internal/models"
)

const (
	DefaultWindow   = 30 * time.Second
	DefaultCapacity = 4096
)

// Key: логический алерт: (symbol, intent, barTime|alertId).
type Key struct {
	Symbol string
	Intent models.Intent
	Token  string
}

func KeyOf(s models.Signal) Key {
	return Key{Symbol: s.Symbol, Intent: s.Intent, Token: s.DedupToken()}
}

func (k Key) String() string { return k.Symbol + "|" + string(k.Intent) + "|" + k.Token }

// Guard: ограниченное множество ключей с временем истечения.
// Проверка и запись выполняются под одним мьютексом.
type Guard struct {
	mu       sync.Mutex
	entries  map[Key]time.Time
	capacity int
	now      func() time.Time
}

func NewGuard(capacity int) *Guard {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Guard{
		entries:  make(map[Key]time.Time),
		capacity: capacity,
		now:      time.Now,
	}
}

// ShouldProcess возвращает false, если ключ уже встречался в пределах window.
// Повтор не продлевает запись. Сигнал без токена дедупликации всегда проходит.
func (g *Guard) ShouldProcess(key Key, window time.Duration) bool {
	if key.Token == "" {
		return true
	}
	if window <= 0 {
		window = DefaultWindow
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.entries[key]; ok {
		if now.Before(exp) {
			return false
		}
		delete(g.entries, key)
	}

	if len(g.entries) >= g.capacity {
		g.sweepLocked(now)
	}
	if len(g.entries) >= g.capacity {
		g.evictOldestLocked()
	}

	g.entries[key] = now.Add(window)
	return true
}

// Sweep удаляет истёкшие ключи, возвращает сколько удалено.
func (g *Guard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sweepLocked(g.now())
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *Guard) sweepLocked(now time.Time) int {
	removed := 0
	for k, exp := range g.entries {
		if !now.Before(exp) {
			delete(g.entries, k)
			removed++
		}
	}
	return removed
}

func (g *Guard) evictOldestLocked() {
	var (
		oldest Key
		minExp time.Time
		found  bool
	)
	for k, exp := range g.entries {
		if !found || exp.Before(minExp) {
			oldest, minExp, found = k, exp, true
		}
	}
	if found {
		delete(g.entries, oldest)
	}
}
