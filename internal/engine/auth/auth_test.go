package auth_test

import (
	"context"
	"testing"
	"time"

	"imovelcerto/internal/db"
	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine/auth"
	"imovelcerto/internal/migrate"
	"imovelcerto/internal/repo"
)

func newService(t *testing.T) auth.Service {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return auth.Service{
		Repo:   repo.Repo{DB: conn},
		Secret: "test-secret",
	}
}

func TestRegistrarELogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	u, err := s.Registrar(ctx, auth.RegistrarOptions{
		Nome:   "Maria",
		Email:  "Maria@Imob.Local",
		Senha:  "segredo1",
		Tipo:   domain.PapelGerenteRegional,
		Regiao: "Norte",
	})
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}
	if u.Email != "maria@imob.local" {
		t.Fatalf("email not normalized: %s", u.Email)
	}
	if u.SenhaHash == "segredo1" || u.SenhaHash == "" {
		t.Fatal("password stored in the clear")
	}

	// Duplicate email, case-insensitive.
	_, err = s.Registrar(ctx, auth.RegistrarOptions{Nome: "Outra", Email: "maria@imob.local", Senha: "x12345"})
	if err != auth.ErrEmailDuplicado {
		t.Fatalf("err = %v, want ErrEmailDuplicado", err)
	}

	logged, token, err := s.Login(ctx, "maria@imob.local", "segredo1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != u.ID || token == "" {
		t.Fatal("login returned wrong user or empty token")
	}

	if _, _, err := s.Login(ctx, "maria@imob.local", "errada"); err != auth.ErrCredenciaisInvalidas {
		t.Fatalf("wrong password err = %v, want ErrCredenciaisInvalidas", err)
	}
	if _, _, err := s.Login(ctx, "ninguem@imob.local", "segredo1"); err != auth.ErrCredenciaisInvalidas {
		t.Fatalf("unknown email err = %v, want ErrCredenciaisInvalidas", err)
	}

	userID, tipo, err := s.VerificarToken(token)
	if err != nil {
		t.Fatalf("verificar: %v", err)
	}
	if userID != u.ID || tipo != domain.PapelGerenteRegional {
		t.Fatalf("claims = (%s, %s)", userID, tipo)
	}
}

func TestLoginUsuarioInativo(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u, err := s.Registrar(ctx, auth.RegistrarOptions{Nome: "Paulo", Email: "paulo@imob.local", Senha: "segredo1"})
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.Repo.DesativarUsuario(ctx, u.ID, now); err != nil {
		t.Fatalf("desativar: %v", err)
	}
	if _, _, err := s.Login(ctx, "paulo@imob.local", "segredo1"); err != auth.ErrCredenciaisInvalidas {
		t.Fatalf("inactive login err = %v, want ErrCredenciaisInvalidas", err)
	}
}

func TestTokenExpirado(t *testing.T) {
	s := newService(t)
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return base }
	s.TokenTTL = time.Hour

	token, err := s.EmitirToken(domain.Usuario{ID: "u1", Email: "x@y.z", Tipo: domain.PapelCaptador})
	if err != nil {
		t.Fatalf("emitir: %v", err)
	}
	if _, _, err := s.VerificarToken(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
	s.Now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, _, err := s.VerificarToken(token); err != auth.ErrTokenInvalido {
		t.Fatalf("expired token err = %v, want ErrTokenInvalido", err)
	}
}

func TestAutorizar(t *testing.T) {
	if err := auth.Autorizar(domain.PapelDiretor, domain.PapelAdmin); err != nil {
		t.Fatalf("diretor vs admin: %v", err)
	}
	err := auth.Autorizar(domain.PapelCaptador, domain.PapelAdmin)
	fe, ok := err.(auth.ForbiddenError)
	if !ok {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
	if fe.Necessario != domain.PapelAdmin {
		t.Fatalf("Necessario = %s", fe.Necessario)
	}
}
