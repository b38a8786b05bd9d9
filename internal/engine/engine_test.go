package engine_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"imovelcerto/internal/config"
	"imovelcerto/internal/db"
	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine"
	"imovelcerto/internal/engine/auth"
	"imovelcerto/internal/migrate"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) (engine.Engine, *clock) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	e := engine.New(conn, cfg)
	c := &clock{now: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
	e.Now = c.Now
	e.Historico.Now = c.Now
	e.Auth.Now = c.Now
	e.Rand = rand.New(rand.NewSource(1))
	return e, c
}

func criarCaptador(t *testing.T, e engine.Engine, nome, regiao string) domain.Usuario {
	t.Helper()
	u, err := e.Auth.Registrar(context.Background(), auth.RegistrarOptions{
		Nome:   nome,
		Email:  nome + "@teste.local",
		Senha:  "senha123",
		Tipo:   domain.PapelCaptador,
		Regiao: regiao,
	})
	if err != nil {
		t.Fatalf("criar captador %s: %v", nome, err)
	}
	return u
}

func criarDemanda(t *testing.T, e engine.Engine, regiao string) domain.Demanda {
	t.Helper()
	d, err := e.CriarDemanda(context.Background(), engine.DemandaCreateOptions{
		ClienteInteressado: "Cliente Teste",
		Contato:            "11 99999-0000",
		TipoImovel:         "apartamento",
		RegiaoDemanda:      regiao,
	})
	if err != nil {
		t.Fatalf("criar demanda: %v", err)
	}
	return d
}

func TestAtribuirMissao(t *testing.T) {
	e, c := newTestEngine(t)
	ctx := context.Background()
	capt := criarCaptador(t, e, "ana", "Norte")
	d := criarDemanda(t, e, "Norte")

	elegiveis, err := e.CaptadoresElegiveis(ctx, d.ID)
	if err != nil {
		t.Fatalf("elegiveis: %v", err)
	}
	if len(elegiveis) != 1 || elegiveis[0].ID != capt.ID {
		t.Fatalf("expected single eligible captador, got %d", len(elegiveis))
	}

	m, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID})
	if err != nil {
		t.Fatalf("atribuir: %v", err)
	}
	if m.Status != domain.MissaoEmAndamento {
		t.Fatalf("missao status = %s", m.Status)
	}
	if m.CaptadorID == nil || *m.CaptadorID != capt.ID {
		t.Fatalf("missao captador = %v", m.CaptadorID)
	}
	if m.PrazoHoras != 48 {
		t.Fatalf("prazo = %d, want default 48", m.PrazoHoras)
	}
	wantLimite := c.now.Add(48 * time.Hour).Format(time.RFC3339)
	if m.DataLimite != wantLimite {
		t.Fatalf("data_limite = %s, want %s", m.DataLimite, wantLimite)
	}

	d2, err := e.Repo.GetDemanda(ctx, d.ID)
	if err != nil {
		t.Fatalf("get demanda: %v", err)
	}
	if d2.Status != domain.DemandaEmCaptacao {
		t.Fatalf("demanda status = %s, want em_captacao", d2.Status)
	}

	// Second assignment on the same demanda must fail.
	if _, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID}); err != engine.ErrMissaoAtivaExistente {
		t.Fatalf("second atribuir err = %v, want ErrMissaoAtivaExistente", err)
	}
}

func TestAtribuirComMissaoAtivaResidual(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	criarCaptador(t, e, "alice", "Norte")
	d := criarDemanda(t, e, "Norte")
	if _, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID}); err != nil {
		t.Fatalf("atribuir: %v", err)
	}

	// A demanda flipped back to pendente while its missao is still active
	// models the race loser reading stale state. The partial unique index
	// on missoes, not the status check, must reject the second insert.
	if _, err := e.DB.ExecContext(ctx, `UPDATE demandas SET status='pendente' WHERE id=?`, d.ID); err != nil {
		t.Fatalf("forcar pendente: %v", err)
	}
	if _, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID}); err != engine.ErrMissaoAtivaExistente {
		t.Fatalf("err = %v, want ErrMissaoAtivaExistente", err)
	}
}

func TestAtribuirCaptadorInelegivel(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	capt := criarCaptador(t, e, "bruno", "Sul")
	d := criarDemanda(t, e, "Norte")

	_, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID, CaptadorID: capt.ID})
	if err != engine.ErrCaptadorInelegivel {
		t.Fatalf("err = %v, want ErrCaptadorInelegivel", err)
	}
	// Roulette draw has no candidates either.
	if _, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID}); err == nil {
		t.Fatal("expected error with empty pool")
	}
}

func TestPrazoRegional(t *testing.T) {
	e, c := newTestEngine(t)
	ctx := context.Background()
	criarCaptador(t, e, "carla", "Norte")
	if _, err := e.Repo.UpsertConfigRegional(ctx, domain.ConfiguracaoRegional{
		Regiao:           "Norte",
		PrazoPadraoHoras: 72,
		Ativo:            true,
	}); err != nil {
		t.Fatalf("upsert config: %v", err)
	}
	d := criarDemanda(t, e, "Norte")
	m, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID})
	if err != nil {
		t.Fatalf("atribuir: %v", err)
	}
	if m.PrazoHoras != 72 {
		t.Fatalf("prazo = %d, want regional override 72", m.PrazoHoras)
	}
	wantLimite := c.now.Add(72 * time.Hour).Format(time.RFC3339)
	if m.DataLimite != wantLimite {
		t.Fatalf("data_limite = %s, want %s", m.DataLimite, wantLimite)
	}
}

func TestTransicaoFluxoCompleto(t *testing.T) {
	e, c := newTestEngine(t)
	ctx := context.Background()
	capt := criarCaptador(t, e, "diego", "Norte")
	d := criarDemanda(t, e, "Norte")
	m, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID})
	if err != nil {
		t.Fatalf("atribuir: %v", err)
	}

	c.Advance(2 * time.Hour)
	m, err = e.TransicionarMissao(ctx, engine.TransicaoOptions{
		MissaoID:                 m.ID,
		NovoStatus:               domain.MissaoImovelEncontrado,
		AtorID:                   capt.ID,
		ImovelEncontradoDetalhes: "casa 3 quartos na Rua A",
	})
	if err != nil {
		t.Fatalf("imovel_encontrado: %v", err)
	}
	if m.TempoDecorridoMinutos != 120 {
		t.Fatalf("tempo_decorrido = %d, want 120", m.TempoDecorridoMinutos)
	}

	c.Advance(time.Hour)
	if _, err := e.TransicionarMissao(ctx, engine.TransicaoOptions{
		MissaoID:   m.ID,
		NovoStatus: domain.MissaoApresentadoCliente,
		AtorID:     capt.ID,
	}); err != nil {
		t.Fatalf("apresentado_cliente: %v", err)
	}

	c.Advance(time.Hour)
	m, err = e.TransicionarMissao(ctx, engine.TransicaoOptions{
		MissaoID:   m.ID,
		NovoStatus: domain.MissaoLocacaoFechada,
		AtorID:     capt.ID,
	})
	if err != nil {
		t.Fatalf("locacao_fechada: %v", err)
	}
	if m.Resultado == nil || *m.Resultado != domain.ResultadoSucesso {
		t.Fatalf("resultado = %v, want sucesso", m.Resultado)
	}
	if m.DataConclusao == nil {
		t.Fatal("data_conclusao not set")
	}

	d2, _ := e.Repo.GetDemanda(ctx, d.ID)
	if d2.Status != domain.DemandaConcluida {
		t.Fatalf("demanda status = %s, want concluida", d2.Status)
	}

	// Terminal missions accept no further transitions.
	_, err = e.TransicionarMissao(ctx, engine.TransicaoOptions{
		MissaoID:   m.ID,
		NovoStatus: domain.MissaoCancelada,
	})
	if _, ok := err.(engine.ErrTransicaoInvalida); !ok {
		t.Fatalf("err = %v, want ErrTransicaoInvalida", err)
	}

	// History forms a contiguous chain from pendente to locacao_fechada.
	hist, err := e.Repo.ListHistoricoMissao(ctx, m.ID)
	if err != nil {
		t.Fatalf("historico: %v", err)
	}
	if len(hist) != 4 {
		t.Fatalf("len(historico) = %d, want 4", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].StatusAnterior != hist[i-1].StatusNovo {
			t.Fatalf("historico not contiguous at %d: %s -> %s", i, hist[i-1].StatusNovo, hist[i].StatusAnterior)
		}
	}
	if hist[1].TempoNaEtapaMinutos != 120 {
		t.Fatalf("tempo_na_etapa = %d, want 120", hist[1].TempoNaEtapaMinutos)
	}
}

func TestTransicaoPuloEtapa(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	criarCaptador(t, e, "edu", "Norte")
	d := criarDemanda(t, e, "Norte")
	m, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID})
	if err != nil {
		t.Fatalf("atribuir: %v", err)
	}

	// Forward skip is allowed.
	m, err = e.TransicionarMissao(ctx, engine.TransicaoOptions{
		MissaoID:   m.ID,
		NovoStatus: domain.MissaoApresentadoCliente,
	})
	if err != nil {
		t.Fatalf("skip forward: %v", err)
	}
	// Going backwards is not.
	_, err = e.TransicionarMissao(ctx, engine.TransicaoOptions{
		MissaoID:   m.ID,
		NovoStatus: domain.MissaoImovelEncontrado,
	})
	if _, ok := err.(engine.ErrTransicaoInvalida); !ok {
		t.Fatalf("backward err = %v, want ErrTransicaoInvalida", err)
	}
}

func TestTempoEsgotadoLiberaDemanda(t *testing.T) {
	e, c := newTestEngine(t)
	ctx := context.Background()
	criarCaptador(t, e, "fabio", "Norte")
	d := criarDemanda(t, e, "Norte")
	m, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID})
	if err != nil {
		t.Fatalf("atribuir: %v", err)
	}

	c.Advance(49 * time.Hour)
	n, err := e.ExpirarVencidas(ctx, "")
	if err != nil {
		t.Fatalf("expirar: %v", err)
	}
	if n != 1 {
		t.Fatalf("expiradas = %d, want 1", n)
	}

	m2, _ := e.Repo.GetMissao(ctx, m.ID)
	if m2.Status != domain.MissaoTempoEsgotado {
		t.Fatalf("missao status = %s, want tempo_esgotado", m2.Status)
	}
	if m2.Resultado == nil || *m2.Resultado != domain.ResultadoTempoEsgotado {
		t.Fatalf("resultado = %v, want tempo_esgotado", m2.Resultado)
	}

	d2, _ := e.Repo.GetDemanda(ctx, d.ID)
	if d2.Status != domain.DemandaPendente {
		t.Fatalf("demanda status = %s, want pendente again", d2.Status)
	}

	// The freed demanda can enter a new roulette round.
	if _, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID}); err != nil {
		t.Fatalf("reassign after timeout: %v", err)
	}

	// Sweep with nothing overdue is a no-op.
	n, err = e.ExpirarVencidas(ctx, "")
	if err != nil || n != 0 {
		t.Fatalf("second sweep = (%d, %v), want (0, nil)", n, err)
	}
}

func TestCancelamentoMissao(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	criarCaptador(t, e, "gina", "Norte")
	d := criarDemanda(t, e, "Norte")
	m, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID})
	if err != nil {
		t.Fatalf("atribuir: %v", err)
	}
	m, err = e.TransicionarMissao(ctx, engine.TransicaoOptions{
		MissaoID:    m.ID,
		NovoStatus:  domain.MissaoCancelada,
		Observacoes: "cliente desistiu",
	})
	if err != nil {
		t.Fatalf("cancelar: %v", err)
	}
	if m.Resultado == nil || *m.Resultado != domain.ResultadoFracasso {
		t.Fatalf("resultado = %v, want fracasso", m.Resultado)
	}
	d2, _ := e.Repo.GetDemanda(ctx, d.ID)
	if d2.Status != domain.DemandaCancelada {
		t.Fatalf("demanda status = %s, want cancelada", d2.Status)
	}
}

func TestCancelarDemandaPendente(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	d := criarDemanda(t, e, "Norte")
	d2, err := e.CancelarDemanda(ctx, d.ID)
	if err != nil {
		t.Fatalf("cancelar: %v", err)
	}
	if d2.Status != domain.DemandaCancelada {
		t.Fatalf("status = %s, want cancelada", d2.Status)
	}
	// Only pending demandas cancel directly.
	if _, err := e.CancelarDemanda(ctx, d.ID); err != engine.ErrDemandaNaoPendente {
		t.Fatalf("err = %v, want ErrDemandaNaoPendente", err)
	}
}

func TestExcluirDemanda(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	criarCaptador(t, e, "hugo", "Norte")

	livre := criarDemanda(t, e, "Norte")
	if err := e.ExcluirDemanda(ctx, livre.ID); err != nil {
		t.Fatalf("excluir demanda livre: %v", err)
	}

	d := criarDemanda(t, e, "Norte")
	if _, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID}); err != nil {
		t.Fatalf("atribuir: %v", err)
	}
	if err := e.ExcluirDemanda(ctx, d.ID); err != engine.ErrDemandaComMissoes {
		t.Fatalf("err = %v, want ErrDemandaComMissoes", err)
	}
}

func TestMetricas(t *testing.T) {
	e, c := newTestEngine(t)
	ctx := context.Background()
	criarCaptador(t, e, "iris", "Geral")

	encerra := func(d domain.Demanda, depois time.Duration, status domain.StatusMissao) {
		m, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID})
		if err != nil {
			t.Fatalf("atribuir: %v", err)
		}
		antes := c.now
		c.Advance(depois)
		if _, err := e.TransicionarMissao(ctx, engine.TransicaoOptions{
			MissaoID:   m.ID,
			NovoStatus: status,
		}); err != nil {
			t.Fatalf("encerrar %s: %v", status, err)
		}
		c.now = antes
	}

	encerra(criarDemanda(t, e, "Norte"), 2*time.Hour, domain.MissaoLocacaoFechada)
	encerra(criarDemanda(t, e, "Norte"), 4*time.Hour, domain.MissaoLocacaoFechada)
	encerra(criarDemanda(t, e, "Norte"), 6*time.Hour, domain.MissaoCancelada)
	criarDemanda(t, e, "Sul")

	met, err := e.CalcularMetricas(ctx, "")
	if err != nil {
		t.Fatalf("metricas: %v", err)
	}
	if met.TotalDemandas != 4 || met.DemandasConcluidas != 2 || met.DemandasPendentes != 1 {
		t.Fatalf("demandas = %+v", met)
	}
	if met.TotalMissoes != 3 || met.MissoesSucesso != 2 || met.MissoesAtivas != 0 {
		t.Fatalf("missoes = %+v", met)
	}
	// Every terminal mission enters the mean: 2h, 4h and 6h average to 4h.
	if met.TempoMedioConclusaoHoras != 4 {
		t.Fatalf("tempo_medio = %f, want 4", met.TempoMedioConclusaoHoras)
	}

	porRegiao, err := e.CalcularMetricas(ctx, "Sul")
	if err != nil {
		t.Fatalf("metricas regiao: %v", err)
	}
	if porRegiao.TotalDemandas != 1 || porRegiao.TotalMissoes != 0 {
		t.Fatalf("metricas Sul = %+v", porRegiao)
	}
}

func TestUrgenciaEAtraso(t *testing.T) {
	e, c := newTestEngine(t)
	ctx := context.Background()
	criarCaptador(t, e, "joao", "Norte")
	d := criarDemanda(t, e, "Norte")
	m, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{DemandaID: d.ID})
	if err != nil {
		t.Fatalf("atribuir: %v", err)
	}
	if e.Urgente(m) || e.Atrasada(m) {
		t.Fatal("fresh mission should be neither urgent nor overdue")
	}
	c.Advance(43 * time.Hour)
	if !e.Urgente(m) {
		t.Fatalf("mission 5h from deadline should be urgent, rest=%d", e.TempoRestanteMinutos(m))
	}
	c.Advance(6 * time.Hour)
	if !e.Atrasada(m) {
		t.Fatal("mission past deadline should be overdue")
	}
}
