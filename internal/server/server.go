// Package server exposes the HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"imovelcerto/internal/engine"
	"imovelcerto/internal/engine/auth"
	"imovelcerto/internal/engine/roleta"
	"imovelcerto/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	// Dev exposes internal error detail in 500 responses.
	Dev bool
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"nao_encontrado"`
	Message string         `json:"message" example:"demanda nao encontrada"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the ImovelCerto API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newDevModeMiddleware(cfg.Dev))
	router.Use(newAuthMiddleware(basePath, cfg.Engine))
	hcfg := huma.DefaultConfig("ImovelCerto API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine)
	registerDemandas(group, cfg.Engine)
	registerMissoes(group, cfg.Engine)
	registerMetricas(group, cfg.Engine)
	registerUsuarios(group, cfg.Engine)
	registerConfigsRegionais(group, cfg.Engine)
	registerRelatorios(group, cfg.Engine)
	if err := registerOpenAPI(router, api, basePath); err != nil {
		return nil, err
	}

	return router, nil
}

type devModeKey struct{}

// newDevModeMiddleware tags each request so 500 bodies can carry the
// underlying error in dev mode. Carried per request, so two servers in one
// process never share the flag.
func newDevModeMiddleware(dev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), devModeKey{}, dev)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func devModeFrom(ctx context.Context) bool {
	dev, _ := ctx.Value(devModeKey{}).(bool)
	return dev
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "permissao_insuficiente", err.Error(), map[string]any{"papel_necessario": string(fe.Necessario)})
	}
	var te engine.ErrTransicaoInvalida
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "transicao_invalida", err.Error(), map[string]any{"de": string(te.De), "para": string(te.Para)})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "nao_encontrado", "registro nao encontrado", nil)
	case errors.Is(err, auth.ErrCredenciaisInvalidas):
		return newAPIError(http.StatusUnauthorized, "credenciais_invalidas", err.Error(), nil)
	case errors.Is(err, auth.ErrEmailDuplicado):
		return newAPIError(http.StatusConflict, "email_duplicado", err.Error(), nil)
	case errors.Is(err, engine.ErrMissaoAtivaExistente):
		return newAPIError(http.StatusConflict, "missao_ativa_existente", err.Error(), nil)
	case errors.Is(err, engine.ErrDemandaNaoPendente):
		return newAPIError(http.StatusConflict, "demanda_nao_pendente", err.Error(), nil)
	case errors.Is(err, engine.ErrDemandaComMissoes):
		return newAPIError(http.StatusConflict, "demanda_com_missoes", err.Error(), nil)
	case errors.Is(err, engine.ErrCaptadorInelegivel):
		return newAPIError(http.StatusUnprocessableEntity, "captador_inelegivel", err.Error(), nil)
	case errors.Is(err, roleta.ErrSemCandidatos):
		return newAPIError(http.StatusUnprocessableEntity, "sem_candidatos", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "obrigatorio") ||
		strings.Contains(lowered, "obrigatorios") || strings.Contains(lowered, "obrigatoria") ||
		strings.Contains(lowered, "maior que") {
		return newAPIError(http.StatusBadRequest, "requisicao_invalida", msg, nil)
	}
	var details map[string]any
	if devModeFrom(ctx) {
		details = map[string]any{"error": msg}
	}
	return newAPIError(http.StatusInternalServerError, "erro_interno", "erro interno", details)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "requisicao_invalida"
	case http.StatusUnauthorized:
		return "nao_autenticado"
	case http.StatusForbidden:
		return "permissao_insuficiente"
	case http.StatusNotFound:
		return "nao_encontrado"
	case http.StatusConflict:
		return "conflito"
	case http.StatusUnprocessableEntity:
		return "entidade_invalida"
	case http.StatusInternalServerError:
		return "erro_interno"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) error {
	// Every operation is registered by now; serialize the document once so
	// concurrent requests share an immutable byte slice.
	oas := api.OpenAPI()
	applyAuthSecurity(oas, basePath)
	spec, err := json.Marshal(oas)
	if err != nil {
		return fmt.Errorf("marshal openapi: %w", err)
	}
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
	return nil
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{}
	for _, p := range []string{"health", "auth/login", "auth/register"} {
		full := path.Join(basePath, p)
		if !strings.HasPrefix(full, "/") {
			full = "/" + full
		}
		open[full] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>ImovelCerto API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}
