package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"signal_bridge/internal/models"
)

// File: yaml-файл через viper. Состояние держится в памяти, каждое изменение
// переписывает файл целиком (tmp + rename).
// Viper приводит ключи к нижнему регистру, поэтому символы хранятся списками, а не ключами.
type File struct {
	path string
	mem  *Memory

	mu sync.Mutex // сериализует запись файла
}

type settingsDTO struct {
	MarginUSDT  string `mapstructure:"margin_usdt" yaml:"margin_usdt"`
	Leverage    int    `mapstructure:"leverage" yaml:"leverage"`
	MarginMode  string `mapstructure:"margin_mode" yaml:"margin_mode"`
	TimeInForce string `mapstructure:"time_in_force" yaml:"time_in_force"`
	AutoTrade   bool   `mapstructure:"auto_trade" yaml:"auto_trade"`
}

type stageDTO struct {
	Move      string  `mapstructure:"move" yaml:"move"`
	Sell      string  `mapstructure:"sell" yaml:"sell"`
	Triggered *uint64 `mapstructure:"triggered_at_epoch" yaml:"triggered_at_epoch,omitempty"`
}

type protectionDTO struct {
	Symbol    string     `mapstructure:"symbol" yaml:"symbol"`
	Stages    []stageDTO `mapstructure:"stages" yaml:"stages"`
	SLPercent string     `mapstructure:"sl_percent" yaml:"sl_percent"`
}

type positionDTO struct {
	Symbol     string     `mapstructure:"symbol" yaml:"symbol"`
	Side       string     `mapstructure:"side" yaml:"side"`
	EntryPrice string     `mapstructure:"entry_price" yaml:"entry_price"`
	Quantity   string     `mapstructure:"quantity" yaml:"quantity"`
	Stages     []stageDTO `mapstructure:"stages" yaml:"stages"`
	SLPercent  string     `mapstructure:"sl_percent" yaml:"sl_percent"`
	Epoch      uint64     `mapstructure:"epoch" yaml:"epoch"`
	State      string     `mapstructure:"state" yaml:"state"`
	UpdatedAt  string     `mapstructure:"updated_at" yaml:"updated_at"`
}

// NewFile читает существующий файл, если он есть; иначе стартует с seed.
func NewFile(path string, seed models.Settings, global models.ProtectionConfig) (*File, error) {
	f := &File{path: path, mem: NewMemory(seed, global)}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return f, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read state %s", path)
	}

	if v.IsSet("settings") {
		var s settingsDTO
		if err := v.UnmarshalKey("settings", &s); err != nil {
			return nil, errors.Wrap(err, "decode settings")
		}
		f.mem.settings = settingsFromDTO(s)
	}

	var prot []protectionDTO
	if err := v.UnmarshalKey("protection", &prot); err != nil {
		return nil, errors.Wrap(err, "decode protection")
	}
	for _, p := range prot {
		c := protectionFromDTO(p)
		f.mem.protection[c.Symbol] = c
	}

	var pos []positionDTO
	if err := v.UnmarshalKey("positions", &pos); err != nil {
		return nil, errors.Wrap(err, "decode positions")
	}
	for _, p := range pos {
		m := positionFromDTO(p)
		f.mem.positions[m.Key()] = m
	}
	return f, nil
}

func (f *File) Settings(ctx context.Context) (models.Settings, error) {
	return f.mem.Settings(ctx)
}

func (f *File) SaveSettings(ctx context.Context, s models.Settings) error {
	_ = f.mem.SaveSettings(ctx, s)
	return f.flush()
}

func (f *File) Protection(ctx context.Context, symbol string) (models.ProtectionConfig, error) {
	return f.mem.Protection(ctx, symbol)
}

func (f *File) SaveProtection(ctx context.Context, c models.ProtectionConfig) error {
	_ = f.mem.SaveProtection(ctx, c)
	return f.flush()
}

// ProtectionConfigs отдаёт все сохранённые конфиги, глобальный первым.
func (f *File) ProtectionConfigs() []models.ProtectionConfig {
	_, prot, _ := f.mem.snapshot()
	return prot
}

func (f *File) SavePosition(ctx context.Context, p models.Position) error {
	_ = f.mem.SavePosition(ctx, p)
	return f.flush()
}

func (f *File) DeletePosition(ctx context.Context, key string) error {
	_ = f.mem.DeletePosition(ctx, key)
	return f.flush()
}

func (f *File) Positions(ctx context.Context) ([]models.Position, error) {
	return f.mem.Positions(ctx)
}

func (f *File) flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	settings, prot, pos := f.mem.snapshot()

	v := viper.New()
	v.Set("settings", settingsToDTO(settings))
	protDTO := make([]protectionDTO, 0, len(prot))
	for _, c := range prot {
		protDTO = append(protDTO, protectionToDTO(c))
	}
	v.Set("protection", protDTO)
	posDTO := make([]positionDTO, 0, len(pos))
	for _, p := range pos {
		posDTO = append(posDTO, positionToDTO(p))
	}
	v.Set("positions", posDTO)

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "mkdir state dir")
		}
	}
	tmp := f.path + ".tmp.yaml"
	if err := v.WriteConfigAs(tmp); err != nil {
		return errors.Wrap(err, "write state")
	}
	return errors.Wrap(os.Rename(tmp, f.path), "rename state")
}

func decOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullDec(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func nullDecString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func settingsToDTO(s models.Settings) settingsDTO {
	return settingsDTO{
		MarginUSDT:  s.MarginUSDT.String(),
		Leverage:    s.Leverage,
		MarginMode:  s.MarginMode,
		TimeInForce: s.TimeInForce,
		AutoTrade:   s.AutoTrade,
	}
}

func settingsFromDTO(d settingsDTO) models.Settings {
	return models.Settings{
		MarginUSDT:  decOrZero(d.MarginUSDT),
		Leverage:    d.Leverage,
		MarginMode:  d.MarginMode,
		TimeInForce: d.TimeInForce,
		AutoTrade:   d.AutoTrade,
	}
}

func protectionToDTO(c models.ProtectionConfig) protectionDTO {
	out := protectionDTO{Symbol: c.Symbol, SLPercent: nullDecString(c.SLPercent)}
	for _, s := range c.Stages {
		out.Stages = append(out.Stages, stageDTO{Move: s.MovePercent.String(), Sell: s.SellPercent.String()})
	}
	return out
}

func protectionFromDTO(d protectionDTO) models.ProtectionConfig {
	out := models.ProtectionConfig{Symbol: d.Symbol, SLPercent: nullDec(d.SLPercent)}
	for _, s := range d.Stages {
		out.Stages = append(out.Stages, models.TPStageConfig{MovePercent: decOrZero(s.Move), SellPercent: decOrZero(s.Sell)})
	}
	return out
}

func positionToDTO(p models.Position) positionDTO {
	out := positionDTO{
		Symbol:     p.Symbol,
		Side:       string(p.Side),
		EntryPrice: p.EntryPrice.String(),
		Quantity:   p.Quantity.String(),
		SLPercent:  nullDecString(p.SLPercent),
		Epoch:      p.Epoch,
		State:      string(p.State),
		UpdatedAt:  p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, s := range p.Stages {
		out.Stages = append(out.Stages, stageDTO{
			Move:      s.MovePercent.String(),
			Sell:      s.SellPercent.String(),
			Triggered: s.TriggeredAtEpoch,
		})
	}
	return out
}

func positionFromDTO(d positionDTO) models.Position {
	out := models.Position{
		Symbol:     d.Symbol,
		Side:       models.PositionSide(d.Side),
		EntryPrice: decOrZero(d.EntryPrice),
		Quantity:   decOrZero(d.Quantity),
		SLPercent:  nullDec(d.SLPercent),
		Epoch:      d.Epoch,
		State:      models.PositionState(d.State),
	}
	out.UpdatedAt, _ = time.Parse(time.RFC3339Nano, d.UpdatedAt)
	for _, s := range d.Stages {
		out.Stages = append(out.Stages, models.TPStage{
			MovePercent:      decOrZero(s.Move),
			SellPercent:      decOrZero(s.Sell),
			TriggeredAtEpoch: s.Triggered,
		})
	}
	return out
}
