package server

import (
	"imovelcerto/internal/domain"
)

type LoginRequest struct {
	Email string `json:"email" format:"email"`
	Senha string `json:"senha"`
}

type LoginResponse struct {
	Token   string         `json:"token"`
	Usuario domain.Usuario `json:"usuario"`
}

type RegisterRequest struct {
	Nome   string `json:"nome"`
	Email  string `json:"email" format:"email"`
	Senha  string `json:"senha" minLength:"6"`
	Regiao string `json:"regiao,omitempty"`
}

type CreateDemandaRequest struct {
	CodigoDemanda            string   `json:"codigo_demanda,omitempty"`
	ConsultorLocacao         string   `json:"consultor_locacao,omitempty"`
	ClienteInteressado       string   `json:"cliente_interessado"`
	Contato                  string   `json:"contato"`
	TipoImovel               string   `json:"tipo_imovel"`
	RegiaoDesejada           string   `json:"regiao_desejada,omitempty"`
	RegiaoDemanda            string   `json:"regiao_demanda"`
	FaixaAluguel             string   `json:"faixa_aluguel,omitempty"`
	ValorAluguelMin          *float64 `json:"valor_aluguel_min,omitempty"`
	ValorAluguelMax          *float64 `json:"valor_aluguel_max,omitempty"`
	CaracteristicasDesejadas *string  `json:"caracteristicas_desejadas,omitempty"`
	PrazoNecessidade         string   `json:"prazo_necessidade,omitempty"`
	Observacoes              *string  `json:"observacoes,omitempty"`
}

type UpdateDemandaRequest struct {
	CodigoDemanda            *string  `json:"codigo_demanda,omitempty"`
	ConsultorLocacao         *string  `json:"consultor_locacao,omitempty"`
	ClienteInteressado       *string  `json:"cliente_interessado,omitempty"`
	Contato                  *string  `json:"contato,omitempty"`
	TipoImovel               *string  `json:"tipo_imovel,omitempty"`
	RegiaoDesejada           *string  `json:"regiao_desejada,omitempty"`
	RegiaoDemanda            *string  `json:"regiao_demanda,omitempty"`
	FaixaAluguel             *string  `json:"faixa_aluguel,omitempty"`
	ValorAluguelMin          *float64 `json:"valor_aluguel_min,omitempty"`
	ValorAluguelMax          *float64 `json:"valor_aluguel_max,omitempty"`
	CaracteristicasDesejadas *string  `json:"caracteristicas_desejadas,omitempty"`
	PrazoNecessidade         *string  `json:"prazo_necessidade,omitempty"`
	Observacoes              *string  `json:"observacoes,omitempty"`
}

type paginatedDemandas struct {
	Items []domain.Demanda `json:"items"`
	Total int              `json:"total"`
}

type AtribuirRequest struct {
	// CaptadorID skips the roulette and assigns directly; must still be
	// eligible for the demanda region.
	CaptadorID string `json:"captador_id,omitempty"`
}

type UpdateMissaoStatusRequest struct {
	Status                   domain.StatusMissao `json:"status" enum:"em_andamento,imovel_encontrado,apresentado_cliente,locacao_fechada,cancelada,tempo_esgotado"`
	Observacoes              string              `json:"observacoes,omitempty"`
	ImovelEncontradoDetalhes string              `json:"imovel_encontrado_detalhes,omitempty"`
}

// MissaoResponse augments the stored row with the live countdown.
type MissaoResponse struct {
	domain.Missao
	TempoRestanteMinutos int  `json:"tempo_restante_minutos"`
	Atrasada             bool `json:"atrasada"`
	Urgente              bool `json:"urgente"`
}

type UpdateUsuarioRequest struct {
	Nome                 *string `json:"nome,omitempty"`
	Tipo                 *string `json:"tipo,omitempty" enum:"captador,gerente_regional,admin,diretor"`
	Regiao               *string `json:"regiao,omitempty"`
	RegioesResponsavel   *string `json:"regioes_responsavel,omitempty"`
	GerenteResponsavelID *string `json:"gerente_responsavel_id,omitempty"`
	Ativo                *bool   `json:"ativo,omitempty"`
}

type CreateUsuarioRequest struct {
	Nome   string `json:"nome"`
	Email  string `json:"email" format:"email"`
	Senha  string `json:"senha" minLength:"6"`
	Tipo   string `json:"tipo" enum:"captador,gerente_regional,admin,diretor"`
	Regiao string `json:"regiao,omitempty"`
}

type UpsertConfigRegionalRequest struct {
	PrazoPadraoHoras     int     `json:"prazo_padrao_horas" minimum:"1"`
	MetaCaptacoesMes     *int    `json:"meta_captacoes_mes,omitempty"`
	GerenteResponsavelID *string `json:"gerente_responsavel_id,omitempty"`
	Ativo                bool    `json:"ativo"`
}

type CreateRelatorioRequest struct {
	Tipo       string `json:"tipo"`
	Titulo     string `json:"titulo"`
	Regiao     string `json:"regiao,omitempty"`
	DataInicio string `json:"data_inicio,omitempty" format:"date-time"`
	DataFim    string `json:"data_fim,omitempty" format:"date-time"`
}

func missaoResponse(e missaoViewer, m domain.Missao) MissaoResponse {
	return MissaoResponse{
		Missao:               m,
		TempoRestanteMinutos: e.TempoRestanteMinutos(m),
		Atrasada:             e.Atrasada(m),
		Urgente:              e.Urgente(m),
	}
}

type missaoViewer interface {
	TempoRestanteMinutos(domain.Missao) int
	Atrasada(domain.Missao) bool
	Urgente(domain.Missao) bool
}

func mapMissoes(e missaoViewer, items []domain.Missao) []MissaoResponse {
	out := make([]MissaoResponse, 0, len(items))
	for _, m := range items {
		out = append(out, missaoResponse(e, m))
	}
	return out
}
