// Package app boots the service: database, migrations, engine, and the
// one-time seed data from the config file.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"imovelcerto/internal/config"
	"imovelcerto/internal/db"
	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine"
	"imovelcerto/internal/engine/auth"
	"imovelcerto/internal/migrate"
	"imovelcerto/internal/repo"
)

type App struct {
	DB     *sql.DB
	Engine engine.Engine
	Config *config.Config
}

// Open connects to the workspace database, runs pending migrations, applies
// the seed block, and returns a ready App. Close the DB when done.
func Open(ctx context.Context, workspace string, cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	if err := seed(ctx, e, cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	return &App{DB: conn, Engine: e, Config: cfg}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// seed applies the config's bootstrap block. Idempotent: the admin is only
// created when the email is free and regional configs upsert by region.
func seed(ctx context.Context, e engine.Engine, cfg *config.Config) error {
	if adm := cfg.Seed.Admin; adm != nil && adm.Email != "" {
		_, err := e.Auth.Registrar(ctx, auth.RegistrarOptions{
			Nome:  adm.Nome,
			Email: adm.Email,
			Senha: adm.Senha,
			Tipo:  "admin",
		})
		if err != nil && err != auth.ErrEmailDuplicado {
			return err
		}
	}
	for _, r := range cfg.Seed.Regioes {
		existing, err := e.Repo.GetConfigRegional(ctx, r.Regiao)
		if err == nil && existing.ID != "" {
			continue
		}
		if err != nil && err != repo.ErrNotFound {
			return err
		}
		_, err = e.Repo.UpsertConfigRegional(ctx, domain.ConfiguracaoRegional{
			Regiao:           r.Regiao,
			PrazoPadraoHoras: r.PrazoPadraoHoras,
			MetaCaptacoesMes: r.MetaCaptacoesMes,
			Ativo:            true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
