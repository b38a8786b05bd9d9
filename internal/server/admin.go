package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine"
	"imovelcerto/internal/engine/auth"
	"imovelcerto/internal/repo"
)

func registerUsuarios(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-usuario",
		Method:        http.MethodPost,
		Path:          "/usuarios",
		Summary:       "Create a user with any role",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUsuarioRequest `json:"body"`
	}) (*struct {
		Body domain.Usuario `json:"body"`
	}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelAdmin); authErr != nil {
			return nil, authErr
		}
		u, err := e.Auth.Registrar(ctx, auth.RegistrarOptions{
			Nome:   input.Body.Nome,
			Email:  input.Body.Email,
			Senha:  input.Body.Senha,
			Tipo:   domain.Papel(input.Body.Tipo),
			Regiao: input.Body.Regiao,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Usuario `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-usuarios",
		Method:      http.MethodGet,
		Path:        "/usuarios",
		Summary:     "List users",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Tipo   string `query:"tipo" enum:"captador,gerente_regional,admin,diretor,"`
		Regiao string `query:"regiao"`
	}) (*struct {
		Body []domain.Usuario `json:"body"`
	}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelGerenteRegional); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListUsuarios(ctx, repo.UsuarioFilters{Tipo: input.Tipo, Regiao: input.Regiao})
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
		OperationID: "get-usuario",
		Method:      http.MethodGet,
		Path:        "/usuarios/{id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Usuario `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// A user may always read their own record.
		if p.UserID != input.ID {
			if _, authErr := requirePapel(ctx, domain.PapelGerenteRegional); authErr != nil {
				return nil, authErr
			}
		}
		u, err := e.Repo.GetUsuario(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Usuario `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-usuario",
		Method:      http.MethodPatch,
		Path:        "/usuarios/{id}",
		Summary:     "Update user fields",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateUsuarioRequest `json:"body"`
	}) (*struct {
		Body domain.Usuario `json:"body"`
	}, error) {
		p, authErr := requirePapel(ctx, domain.PapelAdmin)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Tipo != nil {
			novo := domain.Papel(*input.Body.Tipo)
			if !novo.Valido() {
				return nil, newAPIError(http.StatusBadRequest, "requisicao_invalida", "tipo de usuario invalido", nil)
			}
			// Nobody grants a role above their own.
			if novo.Nivel() > p.Tipo.Nivel() {
				return nil, handleError(ctx, auth.ForbiddenError{Necessario: novo})
			}
		}
		err := e.Repo.UpdateUsuario(ctx, input.ID, repo.UsuarioUpdate{
			Nome:                 input.Body.Nome,
			Tipo:                 input.Body.Tipo,
			Regiao:               input.Body.Regiao,
			RegioesResponsavel:   input.Body.RegioesResponsavel,
			GerenteResponsavelID: input.Body.GerenteResponsavelID,
			Ativo:                input.Body.Ativo,
		}, nowRFC3339(e))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		u, err := e.Repo.GetUsuario(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Usuario `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "deactivate-usuario",
		Method:        http.MethodDelete,
		Path:          "/usuarios/{id}",
		Summary:       "Deactivate a user",
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
		p, authErr := requirePapel(ctx, domain.PapelAdmin)
		if authErr != nil {
			return nil, authErr
		}
		if p.UserID == input.ID {
			return nil, newAPIError(http.StatusConflict, "conflito", "nao e possivel desativar a propria conta", nil)
		}
		if err := e.Repo.DesativarUsuario(ctx, input.ID, nowRFC3339(e)); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerConfigsRegionais(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-configs-regionais",
		Method:      http.MethodGet,
		Path:        "/configuracoes-regionais",
		Summary:     "List regional deadline configs",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ConfiguracaoRegional `json:"body"`
	}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelGerenteRegional); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListConfigsRegionais(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.ConfiguracaoRegional{}
		}
		return &struct {
			Body []domain.ConfiguracaoRegional `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-config-regional",
		Method:      http.MethodPut,
		Path:        "/configuracoes-regionais/{regiao}",
		Summary:     "Create or update the regional deadline config",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Regiao string                      `path:"regiao"`
		Body   UpsertConfigRegionalRequest `json:"body"`
	}) (*struct {
		Body domain.ConfiguracaoRegional `json:"body"`
	}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelAdmin); authErr != nil {
			return nil, authErr
		}
		if input.Body.PrazoPadraoHoras <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "requisicao_invalida", "prazo_padrao_horas deve ser positivo", nil)
		}
		c, err := e.Repo.UpsertConfigRegional(ctx, domain.ConfiguracaoRegional{
			Regiao:               input.Regiao,
			PrazoPadraoHoras:     input.Body.PrazoPadraoHoras,
			MetaCaptacoesMes:     input.Body.MetaCaptacoesMes,
			GerenteResponsavelID: input.Body.GerenteResponsavelID,
			Ativo:                input.Body.Ativo,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.ConfiguracaoRegional `json:"body"`
		}{Body: c}, nil
	})
}

func registerRelatorios(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-relatorio",
		Method:        http.MethodPost,
		Path:          "/relatorios",
		Summary:       "Snapshot current metrics into a report",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateRelatorioRequest `json:"body"`
	}) (*struct {
		Body domain.Relatorio `json:"body"`
	}, error) {
		p, authErr := requirePapel(ctx, domain.PapelGerenteRegional)
		if authErr != nil {
			return nil, authErr
		}
		rel, err := e.GerarRelatorio(ctx, engine.RelatorioOptions{
			Tipo:        input.Body.Tipo,
			Titulo:      input.Body.Titulo,
			Regiao:      input.Body.Regiao,
			DataInicio:  input.Body.DataInicio,
			DataFim:     input.Body.DataFim,
			GeradoPorID: p.UserID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Relatorio `json:"body"`
		}{Body: rel}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-relatorios",
		Method:      http.MethodGet,
		Path:        "/relatorios",
		Summary:     "List stored reports",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Tipo   string `query:"tipo"`
		Regiao string `query:"regiao"`
		Limit  int    `query:"limit" default:"50"`
		Offset int    `query:"offset"`
	}) (*struct {
		Body []domain.Relatorio `json:"body"`
	}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelGerenteRegional); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListRelatorios(ctx, repo.RelatorioFilters{
			Tipo:   input.Tipo,
			Regiao: input.Regiao,
			Limit:  normalizeLimit(input.Limit),
			Offset: input.Offset,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.Relatorio{}
		}
		return &struct {
			Body []domain.Relatorio `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-relatorio",
		Method:      http.MethodGet,
		Path:        "/relatorios/{id}",
		Summary:     "Get report",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Relatorio `json:"body"`
	}, error) {
		if _, authErr := requirePapel(ctx, domain.PapelGerenteRegional); authErr != nil {
			return nil, authErr
		}
		rel, err := e.Repo.GetRelatorio(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Relatorio `json:"body"`
		}{Body: rel}, nil
	})
}

func nowRFC3339(e engine.Engine) string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().UTC().Format(time.RFC3339)
}
