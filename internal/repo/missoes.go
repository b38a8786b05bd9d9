package repo

import (
	"context"
	"database/sql"

	"imovelcerto/internal/domain"
)

const missaoCols = `id,demanda_id,captador_id,criado_por_id,status,data_atribuicao,prazo_horas,data_limite,tempo_decorrido_minutos,observacoes_captador,imovel_encontrado_detalhes,data_conclusao,resultado,created_at,updated_at`

func scanMissao(row interface{ Scan(...any) error }) (domain.Missao, error) {
	var m domain.Missao
	var captador, criador, obs, detalhes, conclusao, resultado sql.NullString
	err := row.Scan(&m.ID, &m.DemandaID, &captador, &criador, &m.Status,
		&m.DataAtribuicao, &m.PrazoHoras, &m.DataLimite, &m.TempoDecorridoMinutos,
		&obs, &detalhes, &conclusao, &resultado, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if captador.Valid {
		m.CaptadorID = &captador.String
	}
	if criador.Valid {
		m.CriadoPorID = &criador.String
	}
	if obs.Valid {
		m.ObservacoesCaptador = &obs.String
	}
	if detalhes.Valid {
		m.ImovelEncontradoDetalhes = &detalhes.String
	}
	if conclusao.Valid {
		m.DataConclusao = &conclusao.String
	}
	if resultado.Valid {
		res := domain.ResultadoMissao(resultado.String)
		m.Resultado = &res
	}
	return m, nil
}

func (r Repo) InsertMissaoTx(ctx context.Context, tx *sql.Tx, m domain.Missao) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO missoes(`+missaoCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.DemandaID, nullableStr(m.CaptadorID), nullableStr(m.CriadoPorID),
		m.Status, m.DataAtribuicao, m.PrazoHoras, m.DataLimite, m.TempoDecorridoMinutos,
		nullableStr(m.ObservacoesCaptador), nullableStr(m.ImovelEncontradoDetalhes),
		nullableStr(m.DataConclusao), nullableResultado(m.Resultado),
		m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMissao(ctx context.Context, id string) (domain.Missao, error) {
	return scanMissao(r.DB.QueryRowContext(ctx, `SELECT `+missaoCols+` FROM missoes WHERE id=?`, id))
}

func (r Repo) GetMissaoTx(ctx context.Context, tx *sql.Tx, id string) (domain.Missao, error) {
	return scanMissao(tx.QueryRowContext(ctx, `SELECT `+missaoCols+` FROM missoes WHERE id=?`, id))
}

// GetMissaoAtivaDaDemanda returns the single non-terminal missão bound to the
// demanda, or ErrNotFound.
func (r Repo) GetMissaoAtivaDaDemanda(ctx context.Context, demandaID string) (domain.Missao, error) {
	return scanMissao(r.DB.QueryRowContext(ctx, `SELECT `+missaoCols+` FROM missoes
WHERE demanda_id=? AND status NOT IN ('locacao_fechada','cancelada','tempo_esgotado')`, demandaID))
}

type MissaoFilters struct {
	Status     string
	CaptadorID string
	DemandaID  string
	Ativas     bool
	Limit      int
	Offset     int
}

func (r Repo) ListMissoes(ctx context.Context, f MissaoFilters) ([]domain.Missao, error) {
	query := `SELECT ` + missaoCols + ` FROM missoes WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.CaptadorID != "" {
		query += ` AND captador_id=?`
		args = append(args, f.CaptadorID)
	}
	if f.DemandaID != "" {
		query += ` AND demanda_id=?`
		args = append(args, f.DemandaID)
	}
	if f.Ativas {
		query += ` AND status NOT IN ('locacao_fechada','cancelada','tempo_esgotado')`
	}
	query += ` ORDER BY data_limite ASC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Missao
	for rows.Next() {
		m, err := scanMissao(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ListMissoesVencidas returns non-terminal missões whose deadline is before now.
func (r Repo) ListMissoesVencidas(ctx context.Context, now string) ([]domain.Missao, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+missaoCols+` FROM missoes
WHERE status NOT IN ('locacao_fechada','cancelada','tempo_esgotado') AND data_limite < ?
ORDER BY data_limite ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Missao
	for rows.Next() {
		m, err := scanMissao(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMissaoTx(ctx context.Context, tx *sql.Tx, m domain.Missao) error {
	res, err := tx.ExecContext(ctx, `UPDATE missoes SET
status=?, tempo_decorrido_minutos=?, observacoes_captador=?, imovel_encontrado_detalhes=?,
data_conclusao=?, resultado=?, updated_at=?
WHERE id=?`,
		m.Status, m.TempoDecorridoMinutos,
		nullableStr(m.ObservacoesCaptador), nullableStr(m.ImovelEncontradoDetalhes),
		nullableStr(m.DataConclusao), nullableResultado(m.Resultado),
		m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListHistoricoMissao(ctx context.Context, missaoID string) ([]domain.HistoricoMissao, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,missao_id,status_anterior,status_novo,alterado_por_id,observacoes,tempo_na_etapa_minutos,created_at
FROM historico_missoes WHERE missao_id=? ORDER BY created_at ASC, id ASC`, missaoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoricoMissao
	for rows.Next() {
		var h domain.HistoricoMissao
		var alterado, obs sql.NullString
		if err := rows.Scan(&h.ID, &h.MissaoID, &h.StatusAnterior, &h.StatusNovo,
			&alterado, &obs, &h.TempoNaEtapaMinutos, &h.CreatedAt); err != nil {
			return nil, err
		}
		if alterado.Valid {
			h.AlteradoPorID = &alterado.String
		}
		if obs.Valid {
			h.Observacoes = &obs.String
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func nullableResultado(v *domain.ResultadoMissao) any {
	if v == nil {
		return nil
	}
	return string(*v)
}
