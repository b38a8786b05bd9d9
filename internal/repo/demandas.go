package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"imovelcerto/internal/domain"
)

const demandaCols = `id,codigo_demanda,consultor_locacao,cliente_interessado,contato,tipo_imovel,regiao_desejada,regiao_demanda,faixa_aluguel,valor_aluguel_min,valor_aluguel_max,caracteristicas_desejadas,prazo_necessidade,observacoes,criado_por_id,status,created_at,updated_at`

func scanDemanda(row interface{ Scan(...any) error }) (domain.Demanda, error) {
	var d domain.Demanda
	var vMin, vMax sql.NullFloat64
	var carac, obs, criador sql.NullString
	err := row.Scan(&d.ID, &d.CodigoDemanda, &d.ConsultorLocacao, &d.ClienteInteressado,
		&d.Contato, &d.TipoImovel, &d.RegiaoDesejada, &d.RegiaoDemanda, &d.FaixaAluguel,
		&vMin, &vMax, &carac, &d.PrazoNecessidade, &obs, &criador,
		&d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if vMin.Valid {
		d.ValorAluguelMin = &vMin.Float64
	}
	if vMax.Valid {
		d.ValorAluguelMax = &vMax.Float64
	}
	if carac.Valid {
		d.CaracteristicasDesejadas = &carac.String
	}
	if obs.Valid {
		d.Observacoes = &obs.String
	}
	if criador.Valid {
		d.CriadoPorID = &criador.String
	}
	return d, nil
}

func (r Repo) InsertDemanda(ctx context.Context, d domain.Demanda) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO demandas(`+demandaCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.CodigoDemanda, d.ConsultorLocacao, d.ClienteInteressado, d.Contato,
		d.TipoImovel, d.RegiaoDesejada, d.RegiaoDemanda, d.FaixaAluguel,
		nullableFloat(d.ValorAluguelMin), nullableFloat(d.ValorAluguelMax),
		nullableStr(d.CaracteristicasDesejadas), d.PrazoNecessidade,
		nullableStr(d.Observacoes), nullableStr(d.CriadoPorID),
		d.Status, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) GetDemanda(ctx context.Context, id string) (domain.Demanda, error) {
	return scanDemanda(r.DB.QueryRowContext(ctx, `SELECT `+demandaCols+` FROM demandas WHERE id=?`, id))
}

func (r Repo) GetDemandaTx(ctx context.Context, tx *sql.Tx, id string) (domain.Demanda, error) {
	return scanDemanda(tx.QueryRowContext(ctx, `SELECT `+demandaCols+` FROM demandas WHERE id=?`, id))
}

type DemandaFilters struct {
	Status string
	Regiao string
	Limit  int
	Offset int
}

func (f DemandaFilters) where() (string, []any) {
	clause := ` WHERE 1=1`
	var args []any
	if f.Status != "" {
		clause += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.Regiao != "" {
		clause += ` AND regiao_demanda=?`
		args = append(args, f.Regiao)
	}
	return clause, args
}

func (r Repo) ListDemandas(ctx context.Context, f DemandaFilters) ([]domain.Demanda, error) {
	clause, args := f.where()
	query := `SELECT ` + demandaCols + ` FROM demandas` + clause + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Demanda
	for rows.Next() {
		d, err := scanDemanda(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) CountDemandas(ctx context.Context, f DemandaFilters) (int, error) {
	clause, args := f.where()
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM demandas`+clause, args...).Scan(&total)
	return total, err
}

type DemandaUpdate struct {
	CodigoDemanda            *string
	ConsultorLocacao         *string
	ClienteInteressado       *string
	Contato                  *string
	TipoImovel               *string
	RegiaoDesejada           *string
	RegiaoDemanda            *string
	FaixaAluguel             *string
	ValorAluguelMin          *float64
	ValorAluguelMax          *float64
	CaracteristicasDesejadas *string
	PrazoNecessidade         *string
	Observacoes              *string
}

func (r Repo) UpdateDemanda(ctx context.Context, id string, upd DemandaUpdate, now string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if upd.CodigoDemanda != nil {
		set("codigo_demanda", *upd.CodigoDemanda)
	}
	if upd.ConsultorLocacao != nil {
		set("consultor_locacao", *upd.ConsultorLocacao)
	}
	if upd.ClienteInteressado != nil {
		set("cliente_interessado", *upd.ClienteInteressado)
	}
	if upd.Contato != nil {
		set("contato", *upd.Contato)
	}
	if upd.TipoImovel != nil {
		set("tipo_imovel", *upd.TipoImovel)
	}
	if upd.RegiaoDesejada != nil {
		set("regiao_desejada", *upd.RegiaoDesejada)
	}
	if upd.RegiaoDemanda != nil {
		set("regiao_demanda", *upd.RegiaoDemanda)
	}
	if upd.FaixaAluguel != nil {
		set("faixa_aluguel", *upd.FaixaAluguel)
	}
	if upd.ValorAluguelMin != nil {
		set("valor_aluguel_min", *upd.ValorAluguelMin)
	}
	if upd.ValorAluguelMax != nil {
		set("valor_aluguel_max", *upd.ValorAluguelMax)
	}
	if upd.CaracteristicasDesejadas != nil {
		set("caracteristicas_desejadas", nullable(*upd.CaracteristicasDesejadas))
	}
	if upd.PrazoNecessidade != nil {
		set("prazo_necessidade", *upd.PrazoNecessidade)
	}
	if upd.Observacoes != nil {
		set("observacoes", nullable(*upd.Observacoes))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE demandas SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateDemandaStatusTx(ctx context.Context, tx *sql.Tx, id string, status domain.StatusDemanda, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE demandas SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteDemanda(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM demandas WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMissoesDaDemanda counts every missão referencing the demanda,
// terminal or not; hard-delete is refused while this is non-zero.
func (r Repo) CountMissoesDaDemanda(ctx context.Context, demandaID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM missoes WHERE demanda_id=?`, demandaID).Scan(&n)
	return n, err
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
