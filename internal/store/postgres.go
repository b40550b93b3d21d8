package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"signal_bridge/internal/models"
	"signal_bridge/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS bridge_settings (
	id         INT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS bridge_protection (
	symbol     TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS bridge_positions (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Postgres хранит каждую запись JSONB-документом (sonic).
type Postgres struct {
	db     db.TxManager
	seed   models.Settings
	global models.ProtectionConfig
}

func NewPostgres(tx db.TxManager, seed models.Settings, global models.ProtectionConfig) *Postgres {
	global.Symbol = ""
	return &Postgres{db: tx, seed: seed, global: global}
}

func (p *Postgres) Migrate(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Migrate: %w", err)
		}
	}()
	_, err = p.db.Conn().Exec(ctx, schema)
	return err
}

func (p *Postgres) Settings(ctx context.Context) (s models.Settings, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Settings: %w", err)
		}
	}()
	var data []byte
	err = p.db.Conn().QueryRow(ctx, `SELECT payload FROM bridge_settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return p.seed, nil
	}
	if err != nil {
		return models.Settings{}, err
	}
	err = sonic.Unmarshal(data, &s)
	return s, err
}

func (p *Postgres) SaveSettings(ctx context.Context, s models.Settings) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.SaveSettings: %w", err)
		}
	}()
	var data []byte
	data, err = sonic.Marshal(s)
	if err != nil {
		return err
	}
	return p.upsert(ctx, `INSERT INTO bridge_settings (id, payload) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, data)
}

func (p *Postgres) Protection(ctx context.Context, symbol string) (c models.ProtectionConfig, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Protection: %w", err)
		}
	}()
	// символ, если есть, иначе глобальная запись ''
	var data []byte
	err = p.db.Conn().QueryRow(ctx,
		`SELECT payload FROM bridge_protection WHERE symbol = $1 OR symbol = '' ORDER BY symbol DESC LIMIT 1`,
		symbol,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		c = p.global
		c.Symbol = symbol
		return c, nil
	}
	if err != nil {
		return models.ProtectionConfig{}, err
	}
	if err = sonic.Unmarshal(data, &c); err != nil {
		return models.ProtectionConfig{}, err
	}
	c.Symbol = symbol
	return c, nil
}

func (p *Postgres) SaveProtection(ctx context.Context, c models.ProtectionConfig) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.SaveProtection: %w", err)
		}
	}()
	var data []byte
	data, err = sonic.Marshal(c)
	if err != nil {
		return err
	}
	return p.upsert(ctx, `INSERT INTO bridge_protection (symbol, payload) VALUES ($2, $1)
		ON CONFLICT (symbol) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, data, c.Symbol)
}

func (p *Postgres) SavePosition(ctx context.Context, pos models.Position) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.SavePosition: %w", err)
		}
	}()
	var data []byte
	data, err = sonic.Marshal(pos)
	if err != nil {
		return err
	}
	return p.upsert(ctx, `INSERT INTO bridge_positions (key, payload) VALUES ($2, $1)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, data, pos.Key())
}

func (p *Postgres) DeletePosition(ctx context.Context, key string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.DeletePosition: %w", err)
		}
	}()
	_, err = p.db.Conn().Exec(ctx, `DELETE FROM bridge_positions WHERE key = $1`, key)
	return err
}

func (p *Postgres) Positions(ctx context.Context) (out []models.Position, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Positions: %w", err)
		}
	}()
	rows, err := p.db.Conn().Query(ctx, `SELECT payload FROM bridge_positions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err = rows.Scan(&data); err != nil {
			return nil, err
		}
		var pos models.Position
		if err = sonic.Unmarshal(data, &pos); err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (p *Postgres) upsert(ctx context.Context, sql string, args ...any) error {
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, sql, args...)
		return err
	})
}
