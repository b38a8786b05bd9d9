package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"imovelcerto/internal/config"
	"imovelcerto/internal/db"
	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine"
	"imovelcerto/internal/engine/auth"
	"imovelcerto/internal/migrate"
	"imovelcerto/internal/server"
)

func newTestServer(t *testing.T) (*httptest.Server, engine.Engine) {
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
	handler, err := server.New(server.Config{Engine: e, BasePath: "/api"})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts, e
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func login(t *testing.T, base, email, senha string) string {
	t.Helper()
	var out struct {
		Token string `json:"token"`
	}
	status := doJSON(t, http.MethodPost, base+"/api/auth/login", "", map[string]string{
		"email": email,
		"senha": senha,
	}, &out)
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d", email, status)
	}
	return out.Token
}

func TestFluxoCompletoHTTP(t *testing.T) {
	ts, e := newTestServer(t)
	ctx := context.Background()

	if _, err := e.Auth.Registrar(ctx, auth.RegistrarOptions{
		Nome:  "Gestora",
		Email: "gestora@imob.local",
		Senha: "segredo1",
		Tipo:  domain.PapelAdmin,
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	// No token, no service.
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/demandas", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: status %d", status)
	}

	adminToken := login(t, ts.URL, "gestora@imob.local", "segredo1")

	// Self sign-up lands as captador.
	var capt domain.Usuario
	status := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register", "", map[string]string{
		"nome":   "Carlos",
		"email":  "carlos@imob.local",
		"senha":  "segredo1",
		"regiao": "Norte",
	}, &capt)
	if status != http.StatusCreated {
		t.Fatalf("register: status %d", status)
	}
	if capt.Tipo != domain.PapelCaptador {
		t.Fatalf("register tipo = %s, want captador", capt.Tipo)
	}
	captToken := login(t, ts.URL, "carlos@imob.local", "segredo1")

	// Captadores cannot open demands.
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/demandas", captToken, map[string]string{
		"cliente_interessado": "Cliente",
		"contato":             "11 98888-0000",
		"tipo_imovel":         "casa",
		"regiao_demanda":      "Norte",
	}, nil); status != http.StatusForbidden {
		t.Fatalf("captador create demanda: status %d", status)
	}

	var dem domain.Demanda
	status = doJSON(t, http.MethodPost, ts.URL+"/api/demandas", adminToken, map[string]string{
		"cliente_interessado": "Cliente",
		"contato":             "11 98888-0000",
		"tipo_imovel":         "casa",
		"regiao_demanda":      "Norte",
	}, &dem)
	if status != http.StatusCreated {
		t.Fatalf("create demanda: status %d", status)
	}
	if dem.Status != domain.DemandaPendente || dem.CodigoDemanda == "" {
		t.Fatalf("demanda = %+v", dem)
	}

	var elegiveis []domain.Usuario
	status = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/demandas/%s/captadores", ts.URL, dem.ID), adminToken, nil, &elegiveis)
	if status != http.StatusOK || len(elegiveis) != 1 {
		t.Fatalf("captadores: status %d, %d eligible", status, len(elegiveis))
	}

	var missao server.MissaoResponse
	status = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/demandas/%s/atribuir", ts.URL, dem.ID), adminToken, map[string]string{}, &missao)
	if status != http.StatusCreated {
		t.Fatalf("atribuir: status %d", status)
	}
	if missao.Status != domain.MissaoEmAndamento || missao.CaptadorID == nil || *missao.CaptadorID != capt.ID {
		t.Fatalf("missao = %+v", missao)
	}
	if missao.TempoRestanteMinutos <= 0 {
		t.Fatalf("tempo_restante = %d", missao.TempoRestanteMinutos)
	}

	// Second assignment conflicts.
	if status := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/demandas/%s/atribuir", ts.URL, dem.ID), adminToken, map[string]string{}, nil); status != http.StatusConflict {
		t.Fatalf("duplicate atribuir: status %d", status)
	}

	// The captador reports progress on their own mission.
	status = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/api/missoes/%s/status", ts.URL, missao.ID), captToken, map[string]string{
		"status":                     "imovel_encontrado",
		"imovel_encontrado_detalhes": "apartamento 2 quartos",
	}, &missao)
	if status != http.StatusOK || missao.Status != domain.MissaoImovelEncontrado {
		t.Fatalf("transicao: status %d, missao %s", status, missao.Status)
	}

	// Cancelling is above a captador's pay grade.
	if status := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/api/missoes/%s/status", ts.URL, missao.ID), captToken, map[string]string{
		"status": "cancelada",
	}, nil); status != http.StatusForbidden {
		t.Fatalf("captador cancel: status %d", status)
	}

	// Backwards transition conflicts.
	if status := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/api/missoes/%s/status", ts.URL, missao.ID), adminToken, map[string]string{
		"status": "em_andamento",
	}, nil); status != http.StatusConflict {
		t.Fatalf("backward transicao: status %d", status)
	}

	var hist []domain.HistoricoMissao
	status = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/missoes/%s/historico", ts.URL, missao.ID), adminToken, nil, &hist)
	if status != http.StatusOK || len(hist) != 2 {
		t.Fatalf("historico: status %d, %d entries", status, len(hist))
	}

	var lista []server.MissaoResponse
	status = doJSON(t, http.MethodGet, ts.URL+"/api/missoes", captToken, nil, &lista)
	if status != http.StatusOK || len(lista) != 1 {
		t.Fatalf("missoes do captador: status %d, %d items", status, len(lista))
	}

	var met domain.Metricas
	status = doJSON(t, http.MethodGet, ts.URL+"/api/metricas", adminToken, nil, &met)
	if status != http.StatusOK {
		t.Fatalf("metricas: status %d", status)
	}
	if met.TotalDemandas != 1 || met.DemandasEmCaptacao != 1 || met.MissoesAtivas != 1 {
		t.Fatalf("metricas = %+v", met)
	}
}

func TestOpenAPIConcorrente(t *testing.T) {
	ts, _ := newTestServer(t)

	// The document is serialized once at startup; parallel first requests
	// must all see the same complete bytes.
	const clients = 8
	bodies := make([][]byte, clients)
	errs := make([]error, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Get(ts.URL + "/api/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs[i] = fmt.Errorf("status %d", resp.StatusCode)
				return
			}
			bodies[i], errs[i] = io.ReadAll(resp.Body)
		}(i)
	}
	wg.Wait()
	for i := 0; i < clients; i++ {
		if errs[i] != nil {
			t.Fatalf("fetch %d: %v", i, errs[i])
		}
		if !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("fetch %d returned a different document", i)
		}
	}

	var oas struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(bodies[0], &oas); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	if _, ok := oas.Paths["/api/demandas"]; !ok {
		t.Fatalf("openapi missing /api/demandas, has %d paths", len(oas.Paths))
	}

	resp, err := http.Get(ts.URL + "/docs")
	if err != nil {
		t.Fatalf("docs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("docs: status %d", resp.StatusCode)
	}
}

func TestAdminHTTP(t *testing.T) {
	ts, e := newTestServer(t)
	ctx := context.Background()
	if _, err := e.Auth.Registrar(ctx, auth.RegistrarOptions{
		Nome:  "Diretor",
		Email: "diretor@imob.local",
		Senha: "segredo1",
		Tipo:  domain.PapelDiretor,
	}); err != nil {
		t.Fatalf("seed diretor: %v", err)
	}
	token := login(t, ts.URL, "diretor@imob.local", "segredo1")

	var cfg domain.ConfiguracaoRegional
	status := doJSON(t, http.MethodPut, ts.URL+"/api/configuracoes-regionais/Norte", token, map[string]any{
		"prazo_padrao_horas": 72,
		"ativo":              true,
	}, &cfg)
	if status != http.StatusOK || cfg.PrazoPadraoHoras != 72 || cfg.Regiao != "Norte" {
		t.Fatalf("upsert config: status %d, cfg %+v", status, cfg)
	}

	var usr domain.Usuario
	status = doJSON(t, http.MethodPost, ts.URL+"/api/usuarios", token, map[string]string{
		"nome":   "Gerente Norte",
		"email":  "gerente@imob.local",
		"senha":  "segredo1",
		"tipo":   "gerente_regional",
		"regiao": "Norte",
	}, &usr)
	if status != http.StatusCreated || usr.Tipo != domain.PapelGerenteRegional {
		t.Fatalf("create usuario: status %d, tipo %s", status, usr.Tipo)
	}

	// Gerente cannot manage users.
	gerToken := login(t, ts.URL, "gerente@imob.local", "segredo1")
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/usuarios", gerToken, map[string]string{
		"nome": "X", "email": "x@imob.local", "senha": "segredo1", "tipo": "captador",
	}, nil); status != http.StatusForbidden {
		t.Fatalf("gerente create usuario: status %d", status)
	}

	// Deactivated users lose access on the next request.
	if status := doJSON(t, http.MethodDelete, ts.URL+"/api/usuarios/"+usr.ID, token, nil, nil); status != http.StatusNoContent {
		t.Fatalf("deactivate: status %d", status)
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/auth/me", gerToken, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("deactivated access: status %d", status)
	}

	var rel domain.Relatorio
	status = doJSON(t, http.MethodPost, ts.URL+"/api/relatorios", token, map[string]string{
		"tipo":   "mensal",
		"titulo": "Fechamento do mes",
	}, &rel)
	if status != http.StatusCreated || rel.DadosJSON == "" {
		t.Fatalf("relatorio: status %d, %+v", status, rel)
	}
}
