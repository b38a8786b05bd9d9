package repo

import (
	"context"
	"database/sql"

	"imovelcerto/internal/domain"
)

const relatorioCols = `id,tipo,titulo,regiao,data_inicio,data_fim,dados_json,filtros_json,gerado_por_id,created_at`

func scanRelatorio(row interface{ Scan(...any) error }) (domain.Relatorio, error) {
	var rel domain.Relatorio
	var regiao, inicio, fim, dados, filtros, gerador sql.NullString
	err := row.Scan(&rel.ID, &rel.Tipo, &rel.Titulo, &regiao, &inicio, &fim,
		&dados, &filtros, &gerador, &rel.CreatedAt)
	if err == sql.ErrNoRows {
		return rel, ErrNotFound
	}
	if err != nil {
		return rel, err
	}
	if regiao.Valid {
		rel.Regiao = &regiao.String
	}
	if inicio.Valid {
		rel.DataInicio = &inicio.String
	}
	if fim.Valid {
		rel.DataFim = &fim.String
	}
	if dados.Valid {
		rel.DadosJSON = dados.String
	}
	if filtros.Valid {
		rel.FiltrosJSON = filtros.String
	}
	if gerador.Valid {
		rel.GeradoPorID = &gerador.String
	}
	return rel, nil
}

func (r Repo) InsertRelatorio(ctx context.Context, rel domain.Relatorio) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO relatorios(`+relatorioCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rel.ID, rel.Tipo, rel.Titulo, nullableStr(rel.Regiao),
		nullableStr(rel.DataInicio), nullableStr(rel.DataFim),
		nullable(rel.DadosJSON), nullable(rel.FiltrosJSON),
		nullableStr(rel.GeradoPorID), rel.CreatedAt)
	return err
}

func (r Repo) GetRelatorio(ctx context.Context, id string) (domain.Relatorio, error) {
	return scanRelatorio(r.DB.QueryRowContext(ctx, `SELECT `+relatorioCols+` FROM relatorios WHERE id=?`, id))
}

type RelatorioFilters struct {
	Tipo   string
	Regiao string
	Limit  int
	Offset int
}

func (r Repo) ListRelatorios(ctx context.Context, f RelatorioFilters) ([]domain.Relatorio, error) {
	query := `SELECT ` + relatorioCols + ` FROM relatorios WHERE 1=1`
	var args []any
	if f.Tipo != "" {
		query += ` AND tipo=?`
		args = append(args, f.Tipo)
	}
	if f.Regiao != "" {
		query += ` AND regiao=?`
		args = append(args, f.Regiao)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Relatorio
	for rows.Next() {
		rel, err := scanRelatorio(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rel)
	}
	return res, rows.Err()
}
