package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"imovelcerto/internal/domain"
)

const configRegionalCols = `id,regiao,prazo_padrao_horas,meta_captacoes_mes,gerente_responsavel_id,ativo,created_at,updated_at`

func scanConfigRegional(row interface{ Scan(...any) error }) (domain.ConfiguracaoRegional, error) {
	var c domain.ConfiguracaoRegional
	var meta sql.NullInt64
	var gerente sql.NullString
	err := row.Scan(&c.ID, &c.Regiao, &c.PrazoPadraoHoras, &meta, &gerente,
		&c.Ativo, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if meta.Valid {
		v := int(meta.Int64)
		c.MetaCaptacoesMes = &v
	}
	if gerente.Valid {
		c.GerenteResponsavelID = &gerente.String
	}
	return c, nil
}

func (r Repo) GetConfigRegional(ctx context.Context, regiao string) (domain.ConfiguracaoRegional, error) {
	return scanConfigRegional(r.DB.QueryRowContext(ctx,
		`SELECT `+configRegionalCols+` FROM configuracoes_regionais WHERE regiao=?`, regiao))
}

func (r Repo) ListConfigsRegionais(ctx context.Context) ([]domain.ConfiguracaoRegional, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+configRegionalCols+` FROM configuracoes_regionais ORDER BY regiao ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ConfiguracaoRegional
	for rows.Next() {
		c, err := scanConfigRegional(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpsertConfigRegional(ctx context.Context, c domain.ConfiguracaoRegional) (domain.ConfiguracaoRegional, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	var meta any
	if c.MetaCaptacoesMes != nil {
		meta = *c.MetaCaptacoesMes
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO configuracoes_regionais(`+configRegionalCols+`) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(regiao) DO UPDATE SET prazo_padrao_horas=excluded.prazo_padrao_horas,
meta_captacoes_mes=excluded.meta_captacoes_mes,
gerente_responsavel_id=excluded.gerente_responsavel_id,
ativo=excluded.ativo, updated_at=excluded.updated_at`,
		c.ID, c.Regiao, c.PrazoPadraoHoras, meta, nullableStr(c.GerenteResponsavelID),
		c.Ativo, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return domain.ConfiguracaoRegional{}, err
	}
	return r.GetConfigRegional(ctx, c.Regiao)
}

// PrazoHorasParaRegiao resolves the assignment deadline for a region: the
// active regional override when present, otherwise fallback.
func (r Repo) PrazoHorasParaRegiao(ctx context.Context, regiao string, fallback int) (int, error) {
	cfg, err := r.GetConfigRegional(ctx, regiao)
	if err == ErrNotFound {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	if !cfg.Ativo || cfg.PrazoPadraoHoras <= 0 {
		return fallback, nil
	}
	return cfg.PrazoPadraoHoras, nil
}
