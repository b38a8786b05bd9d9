// Package engine implements the brokerage operations core: demanda CRUD,
// the roulette assignment, the mission state machine, and metrics.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"imovelcerto/internal/config"
	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine/auth"
	"imovelcerto/internal/engine/roleta"
	"imovelcerto/internal/historico"
	"imovelcerto/internal/repo"
)

var (
	ErrDemandaNaoPendente   = errors.New("demanda nao esta pendente")
	ErrMissaoAtivaExistente = errors.New("demanda ja possui missao ativa")
	ErrDemandaComMissoes    = errors.New("demanda possui missoes vinculadas e nao pode ser excluida")
	ErrCaptadorInelegivel   = errors.New("captador nao elegivel para a regiao da demanda")
)

// ErrTransicaoInvalida reports a rejected mission status change.
type ErrTransicaoInvalida struct {
	De   domain.StatusMissao
	Para domain.StatusMissao
}

func (e ErrTransicaoInvalida) Error() string {
	return fmt.Sprintf("transicao invalida de %s para %s", e.De, e.Para)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Historico historico.Writer
	Auth      auth.Service
	Config    *config.Config
	Now       func() time.Time
	Rand      *rand.Rand
}

// New wires an Engine over db with cfg. Now and Rand get real defaults;
// tests override them after construction.
func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	now := time.Now
	return Engine{
		DB:        db,
		Repo:      r,
		Historico: historico.Writer{DB: db, Now: now},
		Auth: auth.Service{
			Repo:     r,
			Secret:   cfg.Auth.JWTSecret,
			TokenTTL: time.Duration(cfg.Auth.TokenTTLHoras) * time.Hour,
		},
		Config: cfg,
		Now:    now,
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// DemandaCreateOptions carries the fields accepted when registering a demanda.
type DemandaCreateOptions struct {
	CodigoDemanda            string
	ConsultorLocacao         string
	ClienteInteressado       string
	Contato                  string
	TipoImovel               string
	RegiaoDesejada           string
	RegiaoDemanda            string
	FaixaAluguel             string
	ValorAluguelMin          *float64
	ValorAluguelMax          *float64
	CaracteristicasDesejadas *string
	PrazoNecessidade         string
	Observacoes              *string
	CriadoPorID              string
}

func (e Engine) CriarDemanda(ctx context.Context, opts DemandaCreateOptions) (domain.Demanda, error) {
	if opts.ClienteInteressado == "" || opts.Contato == "" || opts.TipoImovel == "" {
		return domain.Demanda{}, errors.New("cliente_interessado, contato e tipo_imovel sao obrigatorios")
	}
	if opts.RegiaoDemanda == "" {
		return domain.Demanda{}, errors.New("regiao_demanda e obrigatoria")
	}
	if opts.ValorAluguelMin != nil && opts.ValorAluguelMax != nil && *opts.ValorAluguelMin > *opts.ValorAluguelMax {
		return domain.Demanda{}, errors.New("valor_aluguel_min maior que valor_aluguel_max")
	}
	now := e.nowRFC3339()
	codigo := opts.CodigoDemanda
	if codigo == "" {
		codigo = e.gerarCodigoDemanda()
	}
	d := domain.Demanda{
		ID:                       uuid.New().String(),
		CodigoDemanda:            codigo,
		ConsultorLocacao:         opts.ConsultorLocacao,
		ClienteInteressado:       opts.ClienteInteressado,
		Contato:                  opts.Contato,
		TipoImovel:               opts.TipoImovel,
		RegiaoDesejada:           opts.RegiaoDesejada,
		RegiaoDemanda:            opts.RegiaoDemanda,
		FaixaAluguel:             opts.FaixaAluguel,
		ValorAluguelMin:          opts.ValorAluguelMin,
		ValorAluguelMax:          opts.ValorAluguelMax,
		CaracteristicasDesejadas: opts.CaracteristicasDesejadas,
		PrazoNecessidade:         opts.PrazoNecessidade,
		Observacoes:              opts.Observacoes,
		Status:                   domain.DemandaPendente,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if opts.CriadoPorID != "" {
		d.CriadoPorID = &opts.CriadoPorID
	}
	if err := e.Repo.InsertDemanda(ctx, d); err != nil {
		return domain.Demanda{}, err
	}
	return d, nil
}

func (e Engine) gerarCodigoDemanda() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("DEM-%s-%s", e.now().UTC().Format("20060102"), suffix)
}

func (e Engine) AtualizarDemanda(ctx context.Context, id string, upd repo.DemandaUpdate) (domain.Demanda, error) {
	if upd.ValorAluguelMin != nil && upd.ValorAluguelMax != nil && *upd.ValorAluguelMin > *upd.ValorAluguelMax {
		return domain.Demanda{}, errors.New("valor_aluguel_min maior que valor_aluguel_max")
	}
	if err := e.Repo.UpdateDemanda(ctx, id, upd, e.nowRFC3339()); err != nil {
		return domain.Demanda{}, err
	}
	return e.Repo.GetDemanda(ctx, id)
}

// CancelarDemanda cancels a pending demanda. A demanda in captação is
// cancelled through its missão so the history stays contiguous.
func (e Engine) CancelarDemanda(ctx context.Context, id string) (domain.Demanda, error) {
	d, err := e.Repo.GetDemanda(ctx, id)
	if err != nil {
		return domain.Demanda{}, err
	}
	if d.Status != domain.DemandaPendente {
		return domain.Demanda{}, ErrDemandaNaoPendente
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Demanda{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateDemandaStatusTx(ctx, tx, id, domain.DemandaCancelada, e.nowRFC3339()); err != nil {
		return domain.Demanda{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Demanda{}, err
	}
	return e.Repo.GetDemanda(ctx, id)
}

// ExcluirDemanda hard-deletes a demanda. Refused while any missão,
// terminal or not, still references it.
func (e Engine) ExcluirDemanda(ctx context.Context, id string) error {
	if _, err := e.Repo.GetDemanda(ctx, id); err != nil {
		return err
	}
	n, err := e.Repo.CountMissoesDaDemanda(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrDemandaComMissoes
	}
	return e.Repo.DeleteDemanda(ctx, id)
}

// CaptadoresElegiveis returns the active captadores matching the demanda
// region, the pool the roulette draws from.
func (e Engine) CaptadoresElegiveis(ctx context.Context, demandaID string) ([]domain.Usuario, error) {
	d, err := e.Repo.GetDemanda(ctx, demandaID)
	if err != nil {
		return nil, err
	}
	pool, err := e.Repo.ListCaptadoresAtivos(ctx)
	if err != nil {
		return nil, err
	}
	return roleta.Elegiveis(pool, d.RegiaoDemanda), nil
}

// AtribuirOptions selects how a missão gets its captador. Empty CaptadorID
// means draw one at random from the eligible pool.
type AtribuirOptions struct {
	DemandaID   string
	CaptadorID  string
	CriadoPorID string
}

// AtribuirMissao creates a missão for a pending demanda and moves it to
// em_captacao, all in one transaction. The partial unique index on missoes
// makes the loser of a concurrent assignment fail here rather than create a
// second active missão.
func (e Engine) AtribuirMissao(ctx context.Context, opts AtribuirOptions) (domain.Missao, error) {
	d, err := e.Repo.GetDemanda(ctx, opts.DemandaID)
	if err != nil {
		return domain.Missao{}, err
	}
	if d.Status != domain.DemandaPendente {
		if d.Status == domain.DemandaEmCaptacao {
			return domain.Missao{}, ErrMissaoAtivaExistente
		}
		return domain.Missao{}, ErrDemandaNaoPendente
	}
	pool, err := e.Repo.ListCaptadoresAtivos(ctx)
	if err != nil {
		return domain.Missao{}, err
	}
	elegiveis := roleta.Elegiveis(pool, d.RegiaoDemanda)
	var captador domain.Usuario
	if opts.CaptadorID != "" {
		found := false
		for _, c := range elegiveis {
			if c.ID == opts.CaptadorID {
				captador = c
				found = true
				break
			}
		}
		if !found {
			return domain.Missao{}, ErrCaptadorInelegivel
		}
	} else {
		captador, err = roleta.Sortear(e.Rand, elegiveis)
		if err != nil {
			return domain.Missao{}, err
		}
	}

	prazo, err := e.Repo.PrazoHorasParaRegiao(ctx, d.RegiaoDemanda, e.Config.Missoes.PrazoPadraoHoras)
	if err != nil {
		return domain.Missao{}, err
	}

	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339)
	m := domain.Missao{
		ID:             uuid.New().String(),
		DemandaID:      d.ID,
		CaptadorID:     &captador.ID,
		Status:         domain.MissaoEmAndamento,
		DataAtribuicao: nowStr,
		PrazoHoras:     prazo,
		DataLimite:     now.Add(time.Duration(prazo) * time.Hour).Format(time.RFC3339),
		CreatedAt:      nowStr,
		UpdatedAt:      nowStr,
	}
	if opts.CriadoPorID != "" {
		m.CriadoPorID = &opts.CriadoPorID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Missao{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMissaoTx(ctx, tx, m); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.Missao{}, ErrMissaoAtivaExistente
		}
		return domain.Missao{}, err
	}
	if err := e.Repo.UpdateDemandaStatusTx(ctx, tx, d.ID, domain.DemandaEmCaptacao, nowStr); err != nil {
		return domain.Missao{}, err
	}
	err = e.Historico.Append(ctx, tx, historico.Entrada{
		MissaoID:       m.ID,
		StatusAnterior: string(domain.DemandaPendente),
		StatusNovo:     string(domain.MissaoEmAndamento),
		AlteradoPorID:  opts.CriadoPorID,
	})
	if err != nil {
		return domain.Missao{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Missao{}, err
	}
	return m, nil
}

// TransicaoOptions carries a mission status change request.
type TransicaoOptions struct {
	MissaoID                 string
	NovoStatus               domain.StatusMissao
	AtorID                   string
	Observacoes              string
	ImovelEncontradoDetalhes string
}

// TransicionarMissao advances the mission state machine. The missão update,
// the history row, and the demanda cascade commit together.
func (e Engine) TransicionarMissao(ctx context.Context, opts TransicaoOptions) (domain.Missao, error) {
	if !opts.NovoStatus.Valido() {
		return domain.Missao{}, fmt.Errorf("status de missao invalido: %s", opts.NovoStatus)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Missao{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissaoTx(ctx, tx, opts.MissaoID)
	if err != nil {
		return domain.Missao{}, err
	}
	if !m.Status.PodeTransicionar(opts.NovoStatus) {
		return domain.Missao{}, ErrTransicaoInvalida{De: m.Status, Para: opts.NovoStatus}
	}

	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339)
	anterior := m.Status
	tempoNaEtapa := minutesSince(m.UpdatedAt, now)

	m.Status = opts.NovoStatus
	m.TempoDecorridoMinutos = minutesSince(m.DataAtribuicao, now)
	m.UpdatedAt = nowStr
	if opts.Observacoes != "" {
		m.ObservacoesCaptador = &opts.Observacoes
	}
	if opts.ImovelEncontradoDetalhes != "" {
		m.ImovelEncontradoDetalhes = &opts.ImovelEncontradoDetalhes
	}
	if opts.NovoStatus.Terminal() {
		m.DataConclusao = &nowStr
		res := domain.ResultadoPara(opts.NovoStatus)
		m.Resultado = &res
	}

	if err := e.Repo.UpdateMissaoTx(ctx, tx, m); err != nil {
		return domain.Missao{}, err
	}
	err = e.Historico.Append(ctx, tx, historico.Entrada{
		MissaoID:            m.ID,
		StatusAnterior:      string(anterior),
		StatusNovo:          string(opts.NovoStatus),
		AlteradoPorID:       opts.AtorID,
		Observacoes:         opts.Observacoes,
		TempoNaEtapaMinutos: tempoNaEtapa,
	})
	if err != nil {
		return domain.Missao{}, err
	}

	if opts.NovoStatus.Terminal() {
		var ds domain.StatusDemanda
		switch opts.NovoStatus {
		case domain.MissaoLocacaoFechada:
			ds = domain.DemandaConcluida
		case domain.MissaoCancelada:
			ds = domain.DemandaCancelada
		default:
			// Timeout frees the demanda for a new roulette round.
			ds = domain.DemandaPendente
		}
		if err := e.Repo.UpdateDemandaStatusTx(ctx, tx, m.DemandaID, ds, nowStr); err != nil {
			return domain.Missao{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Missao{}, err
	}
	return m, nil
}

// ExpirarVencidas times out every non-terminal missão past its deadline and
// returns how many were expired.
func (e Engine) ExpirarVencidas(ctx context.Context, atorID string) (int, error) {
	vencidas, err := e.Repo.ListMissoesVencidas(ctx, e.nowRFC3339())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range vencidas {
		_, err := e.TransicionarMissao(ctx, TransicaoOptions{
			MissaoID:    m.ID,
			NovoStatus:  domain.MissaoTempoEsgotado,
			AtorID:      atorID,
			Observacoes: "prazo expirado",
		})
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// TempoRestanteMinutos is the read-side countdown; negative once overdue.
func (e Engine) TempoRestanteMinutos(m domain.Missao) int {
	limite, err := time.Parse(time.RFC3339, m.DataLimite)
	if err != nil {
		return 0
	}
	return int(limite.Sub(e.now().UTC()).Minutes())
}

func (e Engine) Atrasada(m domain.Missao) bool {
	return !m.Status.Terminal() && e.TempoRestanteMinutos(m) < 0
}

// Urgente flags active missões inside the urgency window before the deadline.
func (e Engine) Urgente(m domain.Missao) bool {
	if m.Status.Terminal() {
		return false
	}
	rest := e.TempoRestanteMinutos(m)
	return rest >= 0 && rest <= e.Config.Missoes.LimiarUrgenciaHoras*60
}

// CalcularMetricas aggregates the dashboard numbers, optionally scoped to one
// region. It reads live rows and never persists anything.
func (e Engine) CalcularMetricas(ctx context.Context, regiao string) (domain.Metricas, error) {
	demandas, err := e.Repo.ListDemandas(ctx, repo.DemandaFilters{Regiao: regiao})
	if err != nil {
		return domain.Metricas{}, err
	}
	var met domain.Metricas
	met.TotalDemandas = len(demandas)
	demandaRegiao := map[string]string{}
	for _, d := range demandas {
		demandaRegiao[d.ID] = d.RegiaoDemanda
		switch d.Status {
		case domain.DemandaPendente:
			met.DemandasPendentes++
		case domain.DemandaEmCaptacao:
			met.DemandasEmCaptacao++
		case domain.DemandaConcluida:
			met.DemandasConcluidas++
		}
	}
	missoes, err := e.Repo.ListMissoes(ctx, repo.MissaoFilters{})
	if err != nil {
		return domain.Metricas{}, err
	}
	var totalHoras float64
	var terminais int
	for _, m := range missoes {
		if regiao != "" {
			if _, ok := demandaRegiao[m.DemandaID]; !ok {
				continue
			}
		}
		met.TotalMissoes++
		if !m.Status.Terminal() {
			met.MissoesAtivas++
		}
		// Every terminal mission counts toward the mean, whatever its outcome.
		if m.DataConclusao != nil {
			inicio, err1 := time.Parse(time.RFC3339, m.DataAtribuicao)
			fim, err2 := time.Parse(time.RFC3339, *m.DataConclusao)
			if err1 == nil && err2 == nil {
				totalHoras += fim.Sub(inicio).Hours()
				terminais++
			}
		}
		if m.Resultado == nil {
			continue
		}
		switch *m.Resultado {
		case domain.ResultadoSucesso:
			met.MissoesSucesso++
		case domain.ResultadoTempoEsgotado:
			met.MissoesTempoEsgotado++
		}
	}
	if terminais > 0 {
		met.TempoMedioConclusaoHoras = totalHoras / float64(terminais)
	}
	return met, nil
}

// RelatorioOptions describes a point-in-time snapshot request.
type RelatorioOptions struct {
	Tipo        string
	Titulo      string
	Regiao      string
	DataInicio  string
	DataFim     string
	GeradoPorID string
}

// GerarRelatorio snapshots the current metrics into a persisted report.
func (e Engine) GerarRelatorio(ctx context.Context, opts RelatorioOptions) (domain.Relatorio, error) {
	if opts.Tipo == "" || opts.Titulo == "" {
		return domain.Relatorio{}, errors.New("tipo e titulo sao obrigatorios")
	}
	met, err := e.CalcularMetricas(ctx, opts.Regiao)
	if err != nil {
		return domain.Relatorio{}, err
	}
	dados, err := json.Marshal(met)
	if err != nil {
		return domain.Relatorio{}, err
	}
	filtros, _ := json.Marshal(map[string]string{"regiao": opts.Regiao})
	rel := domain.Relatorio{
		ID:          uuid.New().String(),
		Tipo:        opts.Tipo,
		Titulo:      opts.Titulo,
		DadosJSON:   string(dados),
		FiltrosJSON: string(filtros),
		CreatedAt:   e.nowRFC3339(),
	}
	if opts.Regiao != "" {
		rel.Regiao = &opts.Regiao
	}
	if opts.DataInicio != "" {
		rel.DataInicio = &opts.DataInicio
	}
	if opts.DataFim != "" {
		rel.DataFim = &opts.DataFim
	}
	if opts.GeradoPorID != "" {
		rel.GeradoPorID = &opts.GeradoPorID
	}
	if err := e.Repo.InsertRelatorio(ctx, rel); err != nil {
		return domain.Relatorio{}, err
	}
	return rel, nil
}

func minutesSince(ts string, now time.Time) int {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return 0
	}
	min := int(now.Sub(t).Minutes())
	if min < 0 {
		return 0
	}
	return min
}
