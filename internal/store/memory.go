package store

import (
	"context"
	"sort"
	"sync"

	"signal_bridge/internal/models"
)

type Memory struct {
	mu         sync.RWMutex
	settings   models.Settings
	protection map[string]models.ProtectionConfig
	positions  map[string]models.Position
}

func NewMemory(seed models.Settings, global models.ProtectionConfig) *Memory {
	m := &Memory{
		settings:   seed,
		protection: make(map[string]models.ProtectionConfig),
		positions:  make(map[string]models.Position),
	}
	global.Symbol = ""
	m.protection[""] = cloneProtection(global)
	return m
}

func (m *Memory) Settings(_ context.Context) (models.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, s models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

func (m *Memory) Protection(_ context.Context, symbol string) (models.ProtectionConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.protection[symbol]; ok {
		return cloneProtection(c), nil
	}
	c := cloneProtection(m.protection[""])
	c.Symbol = symbol
	return c, nil
}

func (m *Memory) SaveProtection(_ context.Context, c models.ProtectionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protection[c.Symbol] = cloneProtection(c)
	return nil
}

func (m *Memory) SavePosition(_ context.Context, p models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Key()] = p.Clone()
	return nil
}

func (m *Memory) DeletePosition(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, key)
	return nil
}

func (m *Memory) Positions(_ context.Context) ([]models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// снимок всего состояния, для файлового стора
func (m *Memory) snapshot() (models.Settings, []models.ProtectionConfig, []models.Position) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prot := make([]models.ProtectionConfig, 0, len(m.protection))
	for _, c := range m.protection {
		prot = append(prot, cloneProtection(c))
	}
	sort.Slice(prot, func(i, j int) bool { return prot[i].Symbol < prot[j].Symbol })

	pos := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		pos = append(pos, p.Clone())
	}
	sort.Slice(pos, func(i, j int) bool { return pos[i].Key() < pos[j].Key() })
	return m.settings, prot, pos
}

func cloneProtection(c models.ProtectionConfig) models.ProtectionConfig {
	out := c
	out.Stages = append([]models.TPStageConfig(nil), c.Stages...)
	return out
}
