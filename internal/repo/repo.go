package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"imovelcerto/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const usuarioCols = `id,nome,email,senha_hash,tipo,regiao,regioes_responsavel,gerente_responsavel_id,ativo,created_at,updated_at`

func scanUsuario(row interface{ Scan(...any) error }) (domain.Usuario, error) {
	var u domain.Usuario
	var regioes, gerente sql.NullString
	err := row.Scan(&u.ID, &u.Nome, &u.Email, &u.SenhaHash, &u.Tipo, &u.Regiao,
		&regioes, &gerente, &u.Ativo, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if regioes.Valid {
		u.RegioesResponsavel = &regioes.String
	}
	if gerente.Valid {
		u.GerenteResponsavelID = &gerente.String
	}
	return u, nil
}

func (r Repo) InsertUsuarioTx(ctx context.Context, tx *sql.Tx, u domain.Usuario) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO usuarios(`+usuarioCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Nome, u.Email, u.SenhaHash, u.Tipo, u.Regiao,
		nullableStr(u.RegioesResponsavel), nullableStr(u.GerenteResponsavelID),
		u.Ativo, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetUsuario(ctx context.Context, id string) (domain.Usuario, error) {
	return scanUsuario(r.DB.QueryRowContext(ctx, `SELECT `+usuarioCols+` FROM usuarios WHERE id=?`, id))
}

func (r Repo) GetUsuarioPorEmail(ctx context.Context, email string) (domain.Usuario, error) {
	return scanUsuario(r.DB.QueryRowContext(ctx, `SELECT `+usuarioCols+` FROM usuarios WHERE email=?`, email))
}

type UsuarioFilters struct {
	Tipo   string
	Regiao string
	Ativo  *bool
}

func (r Repo) ListUsuarios(ctx context.Context, f UsuarioFilters) ([]domain.Usuario, error) {
	query := `SELECT ` + usuarioCols + ` FROM usuarios WHERE 1=1`
	var args []any
	if f.Tipo != "" {
		query += ` AND tipo=?`
		args = append(args, f.Tipo)
	}
	if f.Regiao != "" {
		query += ` AND regiao=?`
		args = append(args, f.Regiao)
	}
	if f.Ativo != nil {
		query += ` AND ativo=?`
		args = append(args, *f.Ativo)
	}
	query += ` ORDER BY nome ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// ListCaptadoresAtivos returns every active user with the captador role,
// the raw pool the eligibility filter narrows down.
func (r Repo) ListCaptadoresAtivos(ctx context.Context) ([]domain.Usuario, error) {
	ativo := true
	return r.ListUsuarios(ctx, UsuarioFilters{Tipo: string(domain.PapelCaptador), Ativo: &ativo})
}

type UsuarioUpdate struct {
	Nome                 *string
	Tipo                 *string
	Regiao               *string
	RegioesResponsavel   *string
	GerenteResponsavelID *string
	Ativo                *bool
}

func (r Repo) UpdateUsuario(ctx context.Context, id string, upd UsuarioUpdate, now string) error {
	var (
		fields []string
		args   []any
	)
	if upd.Nome != nil {
		fields = append(fields, "nome=?")
		args = append(args, *upd.Nome)
	}
	if upd.Tipo != nil {
		fields = append(fields, "tipo=?")
		args = append(args, *upd.Tipo)
	}
	if upd.Regiao != nil {
		fields = append(fields, "regiao=?")
		args = append(args, *upd.Regiao)
	}
	if upd.RegioesResponsavel != nil {
		fields = append(fields, "regioes_responsavel=?")
		args = append(args, nullable(*upd.RegioesResponsavel))
	}
	if upd.GerenteResponsavelID != nil {
		fields = append(fields, "gerente_responsavel_id=?")
		args = append(args, nullable(*upd.GerenteResponsavelID))
	}
	if upd.Ativo != nil {
		fields = append(fields, "ativo=?")
		args = append(args, *upd.Ativo)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE usuarios SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DesativarUsuario soft-deletes: the row stays for history and FKs.
func (r Repo) DesativarUsuario(ctx context.Context, id string, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE usuarios SET ativo=0, updated_at=? WHERE id=?`, now, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
