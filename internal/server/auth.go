package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine"
	"imovelcerto/internal/engine/auth"
)

// Principal is the authenticated user attached to the request context.
type Principal struct {
	UserID string
	Tipo   domain.Papel
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func requirePrincipal(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.UserID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "nao_autenticado", "autenticacao necessaria", nil)
}

// requirePapel gates a handler on the role hierarchy.
func requirePapel(ctx context.Context, necessario domain.Papel) (Principal, huma.StatusError) {
	p, authErr := requirePrincipal(ctx)
	if authErr != nil {
		return Principal{}, authErr
	}
	if err := auth.Autorizar(p.Tipo, necessario); err != nil {
		return Principal{}, handleError(ctx, err)
	}
	return p, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, e engine.Engine) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):        true,
		path.Join(basePath, "auth/login"):    true,
		path.Join(basePath, "auth/register"): true,
		path.Join(basePath, "openapi.json"):  true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for the API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "nao_autenticado", "autenticacao necessaria", nil))
				return
			}
			userID, tipo, err := e.Auth.VerificarToken(token)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "credenciais_invalidas", "token invalido", nil))
				return
			}
			// Revoked users keep a valid token until it expires; check the row.
			u, err := e.Repo.GetUsuario(req.Context(), userID)
			if err != nil || !u.Ativo {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "credenciais_invalidas", "usuario inativo ou inexistente", nil))
				return
			}
			ctx := withPrincipal(req.Context(), Principal{UserID: u.ID, Tipo: tipo})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Authenticate and obtain a session token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if input.Body.Email == "" || input.Body.Senha == "" {
			return nil, newAPIError(http.StatusBadRequest, "requisicao_invalida", "email e senha sao obrigatorios", nil)
		}
		u, token, err := e.Auth.Login(ctx, input.Body.Email, input.Body.Senha)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, Usuario: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register a new captador account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body domain.Usuario `json:"body"`
	}, error) {
		// Self sign-up always lands as captador; elevated roles go
		// through the admin endpoints.
		u, err := e.Auth.Registrar(ctx, auth.RegistrarOptions{
			Nome:   input.Body.Nome,
			Email:  input.Body.Email,
			Senha:  input.Body.Senha,
			Tipo:   domain.PapelCaptador,
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
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current authenticated user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Usuario `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUsuario(ctx, p.UserID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Usuario `json:"body"`
		}{Body: u}, nil
	})
}
