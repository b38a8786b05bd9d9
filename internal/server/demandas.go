package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine"
	"imovelcerto/internal/repo"
)

func registerDemandas(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-demanda",
		Method:        http.MethodPost,
		Path:          "/demandas",
		Summary:       "Register a rental demand",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDemandaRequest `json:"body"`
	}) (*struct {
		Body domain.Demanda `json:"body"`
	}, error) {
		p, authErr := requirePapel(ctx, domain.PapelGerenteRegional)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CriarDemanda(ctx, engine.DemandaCreateOptions{
			CodigoDemanda:            input.Body.CodigoDemanda,
			ConsultorLocacao:         input.Body.ConsultorLocacao,
			ClienteInteressado:       input.Body.ClienteInteressado,
			Contato:                  input.Body.Contato,
			TipoImovel:               input.Body.TipoImovel,
			RegiaoDesejada:           input.Body.RegiaoDesejada,
			RegiaoDemanda:            input.Body.RegiaoDemanda,
			FaixaAluguel:             input.Body.FaixaAluguel,
			ValorAluguelMin:          input.Body.ValorAluguelMin,
			ValorAluguelMax:          input.Body.ValorAluguelMax,
			CaracteristicasDesejadas: input.Body.CaracteristicasDesejadas,
			PrazoNecessidade:         input.Body.PrazoNecessidade,
			Observacoes:              input.Body.Observacoes,
			CriadoPorID:              p.UserID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Demanda `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-demandas",
		Method:      http.MethodGet,
		Path:        "/demandas",
		Summary:     "List demands",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pendente,em_captacao,concluida,cancelada,"`
		Regiao string `query:"regiao"`
		Limit  int    `query:"limit" default:"50"`
		Offset int    `query:"offset"`
	}) (*struct {
		Body paginatedDemandas `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		filters := repo.DemandaFilters{
			Status: input.Status,
			Regiao: input.Regiao,
			Limit:  normalizeLimit(input.Limit),
			Offset: input.Offset,
		}
		items, err := e.Repo.ListDemandas(ctx, filters)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		total, err := e.Repo.CountDemandas(ctx, filters)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.Demanda{}
		}
		return &struct {
			Body paginatedDemandas `json:"body"`
		}{Body: paginatedDemandas{Items: items, Total: total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-demanda",
		Method:      http.MethodGet,
		Path:        "/demandas/{id}",
		Summary:     "Get demand",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Demanda `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.Repo.GetDemanda(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Demanda `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-demanda",
		Method:      http.MethodPatch,
		Path:        "/demandas/{id}",
		Summary:     "Update demand fields",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateDemandaRequest `json:"body"`
	}) (*struct {
		Body domain.Demanda `json:"body"`
	}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelGerenteRegional); authErr != nil {
			return nil, authErr
		}
		d, err := e.AtualizarDemanda(ctx, input.ID, repo.DemandaUpdate{
			CodigoDemanda:            input.Body.CodigoDemanda,
			ConsultorLocacao:         input.Body.ConsultorLocacao,
			ClienteInteressado:       input.Body.ClienteInteressado,
			Contato:                  input.Body.Contato,
			TipoImovel:               input.Body.TipoImovel,
			RegiaoDesejada:           input.Body.RegiaoDesejada,
			RegiaoDemanda:            input.Body.RegiaoDemanda,
			FaixaAluguel:             input.Body.FaixaAluguel,
			ValorAluguelMin:          input.Body.ValorAluguelMin,
			ValorAluguelMax:          input.Body.ValorAluguelMax,
			CaracteristicasDesejadas: input.Body.CaracteristicasDesejadas,
			PrazoNecessidade:         input.Body.PrazoNecessidade,
			Observacoes:              input.Body.Observacoes,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Demanda `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-demanda",
		Method:      http.MethodPost,
		Path:        "/demandas/{id}/cancelar",
		Summary:     "Cancel a pending demand",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Demanda `json:"body"`
	}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelGerenteRegional); authErr != nil {
			return nil, authErr
		}
		d, err := e.CancelarDemanda(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Demanda `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-demanda",
		Method:        http.MethodDelete,
		Path:          "/demandas/{id}",
		Summary:       "Delete a demand without missions",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelAdmin); authErr != nil {
			return nil, authErr
		}
		if err := e.ExcluirDemanda(ctx, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-captadores-elegiveis",
		Method:      http.MethodGet,
		Path:        "/demandas/{id}/captadores",
		Summary:     "Eligible captadores for the demand region",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Usuario `json:"body"`
	}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelGerenteRegional); authErr != nil {
			return nil, authErr
		}
		items, err := e.CaptadoresElegiveis(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.Usuario{}
		}
		return &struct {
			Body []domain.Usuario `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "atribuir-missao",
		Method:        http.MethodPost,
		Path:          "/demandas/{id}/atribuir",
		Summary:       "Assign the demand to a captador via roulette",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body AtribuirRequest `json:"body"`
	}) (*struct {
		Body MissaoResponse `json:"body"`
	}, error) {
		p, authErr := requirePapel(ctx, domain.PapelGerenteRegional)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AtribuirMissao(ctx, engine.AtribuirOptions{
			DemandaID:   input.ID,
			CaptadorID:  input.Body.CaptadorID,
			CriadoPorID: p.UserID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body MissaoResponse `json:"body"`
		}{Body: missaoResponse(e, m)}, nil
	})
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
