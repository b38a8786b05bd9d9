package domain

// Papel is the user role. Roles form a strict privilege order:
// diretor > admin > gerente_regional > captador.
type Papel string

const (
	PapelCaptador        Papel = "captador"
	PapelGerenteRegional Papel = "gerente_regional"
	PapelAdmin           Papel = "admin"
	PapelDiretor         Papel = "diretor"
)

var papelNivel = map[Papel]int{
	PapelCaptador:        1,
	PapelGerenteRegional: 2,
	PapelAdmin:           3,
	PapelDiretor:         4,
}

// Valido reports whether p is a recognized role.
func (p Papel) Valido() bool {
	_, ok := papelNivel[p]
	return ok
}

// Nivel returns the privilege level of p, 0 for unknown roles.
func (p Papel) Nivel() int {
	return papelNivel[p]
}

// TemPermissao reports whether p has at least the privilege of required.
func (p Papel) TemPermissao(required Papel) bool {
	return papelNivel[p] >= papelNivel[required]
}

// RegiaoGeral is the wildcard region: captadores based there are eligible
// for demandas in every region.
const RegiaoGeral = "Geral"

type StatusDemanda string

const (
	DemandaPendente   StatusDemanda = "pendente"
	DemandaEmCaptacao StatusDemanda = "em_captacao"
	DemandaConcluida  StatusDemanda = "concluida"
	DemandaCancelada  StatusDemanda = "cancelada"
)

type StatusMissao string

const (
	MissaoEmAndamento        StatusMissao = "em_andamento"
	MissaoImovelEncontrado   StatusMissao = "imovel_encontrado"
	MissaoApresentadoCliente StatusMissao = "apresentado_cliente"
	MissaoLocacaoFechada     StatusMissao = "locacao_fechada"
	MissaoCancelada          StatusMissao = "cancelada"
	MissaoTempoEsgotado      StatusMissao = "tempo_esgotado"
)

// etapa maps happy-path statuses to their progression order.
var etapa = map[StatusMissao]int{
	MissaoEmAndamento:        1,
	MissaoImovelEncontrado:   2,
	MissaoApresentadoCliente: 3,
	MissaoLocacaoFechada:     4,
}

// Terminal reports whether no further transition is allowed from s.
func (s StatusMissao) Terminal() bool {
	switch s {
	case MissaoLocacaoFechada, MissaoCancelada, MissaoTempoEsgotado:
		return true
	}
	return false
}

// Valido reports whether s is a recognized mission status.
func (s StatusMissao) Valido() bool {
	if _, ok := etapa[s]; ok {
		return true
	}
	return s == MissaoCancelada || s == MissaoTempoEsgotado
}

// PodeTransicionar reports whether a mission may move from s to novo.
// Happy-path moves must be strictly forward (skips allowed); cancelada and
// tempo_esgotado are reachable from any non-terminal status.
func (s StatusMissao) PodeTransicionar(novo StatusMissao) bool {
	if s.Terminal() {
		return false
	}
	if novo == MissaoCancelada || novo == MissaoTempoEsgotado {
		return true
	}
	from, ok := etapa[s]
	if !ok {
		return false
	}
	to, ok := etapa[novo]
	if !ok {
		return false
	}
	return to > from
}

type ResultadoMissao string

const (
	ResultadoSucesso       ResultadoMissao = "sucesso"
	ResultadoFracasso      ResultadoMissao = "fracasso"
	ResultadoTempoEsgotado ResultadoMissao = "tempo_esgotado"
)

// ResultadoPara returns the result stamped when a mission reaches the given
// terminal status.
func ResultadoPara(s StatusMissao) ResultadoMissao {
	switch s {
	case MissaoLocacaoFechada:
		return ResultadoSucesso
	case MissaoCancelada:
		return ResultadoFracasso
	default:
		return ResultadoTempoEsgotado
	}
}

type Usuario struct {
	ID                   string  `json:"id"`
	Nome                 string  `json:"nome"`
	Email                string  `json:"email"`
	SenhaHash            string  `json:"-"`
	Tipo                 Papel   `json:"tipo" enum:"captador,gerente_regional,admin,diretor"`
	Regiao               string  `json:"regiao"`
	RegioesResponsavel   *string `json:"regioes_responsavel,omitempty"`
	GerenteResponsavelID *string `json:"gerente_responsavel_id,omitempty"`
	Ativo                bool    `json:"ativo"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
	UpdatedAt            string  `json:"updated_at" format:"date-time"`
}

type Demanda struct {
	ID                       string        `json:"id"`
	CodigoDemanda            string        `json:"codigo_demanda"`
	ConsultorLocacao         string        `json:"consultor_locacao"`
	ClienteInteressado       string        `json:"cliente_interessado"`
	Contato                  string        `json:"contato"`
	TipoImovel               string        `json:"tipo_imovel"`
	RegiaoDesejada           string        `json:"regiao_desejada"`
	RegiaoDemanda            string        `json:"regiao_demanda"`
	FaixaAluguel             string        `json:"faixa_aluguel"`
	ValorAluguelMin          *float64      `json:"valor_aluguel_min,omitempty"`
	ValorAluguelMax          *float64      `json:"valor_aluguel_max,omitempty"`
	CaracteristicasDesejadas *string       `json:"caracteristicas_desejadas,omitempty"`
	PrazoNecessidade         string        `json:"prazo_necessidade"`
	Observacoes              *string       `json:"observacoes,omitempty"`
	CriadoPorID              *string       `json:"criado_por_id,omitempty"`
	Status                   StatusDemanda `json:"status" enum:"pendente,em_captacao,concluida,cancelada"`
	CreatedAt                string        `json:"created_at" format:"date-time"`
	UpdatedAt                string        `json:"updated_at" format:"date-time"`
}

type Missao struct {
	ID                       string           `json:"id"`
	DemandaID                string           `json:"demanda_id"`
	CaptadorID               *string          `json:"captador_id,omitempty"`
	CriadoPorID              *string          `json:"criado_por_id,omitempty"`
	Status                   StatusMissao     `json:"status" enum:"em_andamento,imovel_encontrado,apresentado_cliente,locacao_fechada,cancelada,tempo_esgotado"`
	DataAtribuicao           string           `json:"data_atribuicao" format:"date-time"`
	PrazoHoras               int              `json:"prazo_horas"`
	DataLimite               string           `json:"data_limite" format:"date-time"`
	TempoDecorridoMinutos    int              `json:"tempo_decorrido_minutos"`
	ObservacoesCaptador      *string          `json:"observacoes_captador,omitempty"`
	ImovelEncontradoDetalhes *string          `json:"imovel_encontrado_detalhes,omitempty"`
	DataConclusao            *string          `json:"data_conclusao,omitempty" format:"date-time"`
	Resultado                *ResultadoMissao `json:"resultado,omitempty" enum:"sucesso,fracasso,tempo_esgotado"`
	CreatedAt                string           `json:"created_at" format:"date-time"`
	UpdatedAt                string           `json:"updated_at" format:"date-time"`
}

type HistoricoMissao struct {
	ID                  string  `json:"id"`
	MissaoID            string  `json:"missao_id"`
	StatusAnterior      string  `json:"status_anterior"`
	StatusNovo          string  `json:"status_novo"`
	AlteradoPorID       *string `json:"alterado_por_id,omitempty"`
	Observacoes         *string `json:"observacoes,omitempty"`
	TempoNaEtapaMinutos int     `json:"tempo_na_etapa_minutos"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
}

type ConfiguracaoRegional struct {
	ID                   string  `json:"id"`
	Regiao               string  `json:"regiao"`
	PrazoPadraoHoras     int     `json:"prazo_padrao_horas"`
	MetaCaptacoesMes     *int    `json:"meta_captacoes_mes,omitempty"`
	GerenteResponsavelID *string `json:"gerente_responsavel_id,omitempty"`
	Ativo                bool    `json:"ativo"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
	UpdatedAt            string  `json:"updated_at" format:"date-time"`
}

type Relatorio struct {
	ID          string  `json:"id"`
	Tipo        string  `json:"tipo"`
	Titulo      string  `json:"titulo"`
	Regiao      *string `json:"regiao,omitempty"`
	DataInicio  *string `json:"data_inicio,omitempty" format:"date-time"`
	DataFim     *string `json:"data_fim,omitempty" format:"date-time"`
	DadosJSON   string  `json:"dados_json,omitempty"`
	FiltrosJSON string  `json:"filtros_json,omitempty"`
	GeradoPorID *string `json:"gerado_por_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// Metricas is the dashboard projection; it is recomputed on every read and
// never persisted (relatorios store point-in-time snapshots of it).
type Metricas struct {
	TotalDemandas            int     `json:"total_demandas"`
	DemandasPendentes        int     `json:"demandas_pendentes"`
	DemandasEmCaptacao       int     `json:"demandas_em_captacao"`
	DemandasConcluidas       int     `json:"demandas_concluidas"`
	TotalMissoes             int     `json:"total_missoes"`
	MissoesAtivas            int     `json:"missoes_ativas"`
	MissoesSucesso           int     `json:"missoes_sucesso"`
	MissoesTempoEsgotado     int     `json:"missoes_tempo_esgotado"`
	TempoMedioConclusaoHoras float64 `json:"tempo_medio_conclusao_horas"`
}
