package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine"
	"imovelcerto/internal/repo"
)

func registerMissoes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missoes",
		Method:      http.MethodGet,
		Path:        "/missoes",
		Summary:     "List missions",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" enum:"em_andamento,imovel_encontrado,apresentado_cliente,locacao_fechada,cancelada,tempo_esgotado,"`
		CaptadorID string `query:"captador_id"`
		DemandaID  string `query:"demanda_id"`
		Ativas     bool   `query:"ativas"`
		Limit      int    `query:"limit" default:"50"`
		Offset     int    `query:"offset"`
	}) (*struct {
		Body []MissaoResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		filters := repo.MissaoFilters{
			Status:     input.Status,
			CaptadorID: input.CaptadorID,
			DemandaID:  input.DemandaID,
			Ativas:     input.Ativas,
			Limit:      normalizeLimit(input.Limit),
			Offset:     input.Offset,
		}
		// Captadores only see their own missions.
		if p.Tipo == domain.PapelCaptador {
			filters.CaptadorID = p.UserID
		}
		items, err := e.Repo.ListMissoes(ctx, filters)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []MissaoResponse `json:"body"`
		}{Body: mapMissoes(e, items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-missao",
		Method:      http.MethodGet,
		Path:        "/missoes/{id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MissaoResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Repo.GetMissao(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if authErr := requireMissaoAccess(p, m); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body MissaoResponse `json:"body"`
		}{Body: missaoResponse(e, m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-missao-status",
		Method:      http.MethodPatch,
		Path:        "/missoes/{id}/status",
		Summary:     "Advance the mission state machine",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body UpdateMissaoStatusRequest `json:"body"`
	}) (*struct {
		Body MissaoResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Repo.GetMissao(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if authErr := requireMissaoAccess(p, m); authErr != nil {
			return nil, authErr
		}
		// Captadores report progress; cancelling is a management call.
		if input.Body.Status == domain.MissaoCancelada && p.Tipo == domain.PapelCaptador {
			return nil, newAPIError(http.StatusForbidden, "permissao_insuficiente",
				"cancelamento de missao requer gerente_regional ou superior", nil)
		}
		m, err = e.TransicionarMissao(ctx, engine.TransicaoOptions{
			MissaoID:                 input.ID,
			NovoStatus:               input.Body.Status,
			AtorID:                   p.UserID,
			Observacoes:              input.Body.Observacoes,
			ImovelEncontradoDetalhes: input.Body.ImovelEncontradoDetalhes,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body MissaoResponse `json:"body"`
		}{Body: missaoResponse(e, m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "missao-historico",
		Method:      http.MethodGet,
		Path:        "/missoes/{id}/historico",
		Summary:     "Mission transition history",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.HistoricoMissao `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Repo.GetMissao(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if authErr := requireMissaoAccess(p, m); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListHistoricoMissao(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.HistoricoMissao{}
		}
		return &struct {
			Body []domain.HistoricoMissao `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expirar-missoes-vencidas",
		Method:      http.MethodPost,
		Path:        "/missoes/vencidas/expirar",
		Summary:     "Time out every mission past its deadline",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Expiradas int `json:"expiradas"`
		} `json:"body"`
	}, error) {
		p, authErr := requirePapel(ctx, domain.PapelGerenteRegional)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.ExpirarVencidas(ctx, p.UserID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		out := &struct {
			Body struct {
				Expiradas int `json:"expiradas"`
			} `json:"body"`
		}{}
		out.Body.Expiradas = n
		return out, nil
	})
}

// requireMissaoAccess lets a captador touch only missions assigned to them;
// gerente_regional and above see everything.
func requireMissaoAccess(p Principal, m domain.Missao) huma.StatusError {
	if p.Tipo != domain.PapelCaptador {
		return nil
	}
	if m.CaptadorID != nil && *m.CaptadorID == p.UserID {
		return nil
	}
	return newAPIError(http.StatusForbidden, "permissao_insuficiente", "missao atribuida a outro captador", nil)
}

func registerMetricas(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "metricas",
		Method:      http.MethodGet,
		Path:        "/metricas",
		Summary:     "Dashboard metrics",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Regiao string `query:"regiao"`
	}) (*struct {
		Body domain.Metricas `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		met, err := e.CalcularMetricas(ctx, input.Regiao)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Metricas `json:"body"`
		}{Body: met}, nil
	})
}
