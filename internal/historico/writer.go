// Package historico appends the audit trail of mission status transitions.
// Entries are written inside the caller's transaction so a transition and its
// history row commit or roll back together.
package historico

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Entrada is one transition record.
type Entrada struct {
	MissaoID            string
	StatusAnterior      string
	StatusNovo          string
	AlteradoPorID       string
	Observacoes         string
	TempoNaEtapaMinutos int
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entrada) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO historico_missoes(id,missao_id,status_anterior,status_novo,alterado_por_id,observacoes,tempo_na_etapa_minutos,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		uuid.New().String(), e.MissaoID, e.StatusAnterior, e.StatusNovo,
		nullable(e.AlteradoPorID), nullable(e.Observacoes), e.TempoNaEtapaMinutos, ts)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
