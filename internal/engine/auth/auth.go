// Package auth handles credentials and role checks: bcrypt password hashing,
// HS256 session tokens, and the role hierarchy gate.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"imovelcerto/internal/domain"
	"imovelcerto/internal/repo"
)

var (
	ErrCredenciaisInvalidas = errors.New("email ou senha invalidos")
	ErrEmailDuplicado       = errors.New("email ja cadastrado")
	ErrTokenInvalido        = errors.New("token invalido")
)

// ForbiddenError reports a role gate the caller did not clear.
type ForbiddenError struct {
	Necessario domain.Papel
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permissao insuficiente: requer %s ou superior", e.Necessario)
}

type Service struct {
	Repo     repo.Repo
	Secret   string
	TokenTTL time.Duration
	Now      func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) ttl() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return 24 * time.Hour
}

// HashSenha hashes a plaintext password with bcrypt at the default cost.
func HashSenha(senha string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(senha), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RegistrarOptions carries the fields accepted on sign-up.
type RegistrarOptions struct {
	Nome   string
	Email  string
	Senha  string
	Tipo   domain.Papel
	Regiao string
}

// Registrar creates a user with a hashed password. Email is unique; a
// duplicate returns ErrEmailDuplicado.
func (s Service) Registrar(ctx context.Context, opts RegistrarOptions) (domain.Usuario, error) {
	email := strings.ToLower(strings.TrimSpace(opts.Email))
	if email == "" || opts.Senha == "" || opts.Nome == "" {
		return domain.Usuario{}, errors.New("nome, email e senha sao obrigatorios")
	}
	if opts.Tipo == "" {
		opts.Tipo = domain.PapelCaptador
	}
	if !opts.Tipo.Valido() {
		return domain.Usuario{}, fmt.Errorf("tipo de usuario invalido: %s", opts.Tipo)
	}
	if opts.Regiao == "" {
		opts.Regiao = domain.RegiaoGeral
	}
	if _, err := s.Repo.GetUsuarioPorEmail(ctx, email); err == nil {
		return domain.Usuario{}, ErrEmailDuplicado
	} else if err != repo.ErrNotFound {
		return domain.Usuario{}, err
	}
	hash, err := HashSenha(opts.Senha)
	if err != nil {
		return domain.Usuario{}, err
	}
	now := s.now().UTC().Format(time.RFC3339)
	u := domain.Usuario{
		ID:        uuid.New().String(),
		Nome:      strings.TrimSpace(opts.Nome),
		Email:     email,
		SenhaHash: hash,
		Tipo:      opts.Tipo,
		Regiao:    opts.Regiao,
		Ativo:     true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Usuario{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertUsuarioTx(ctx, tx, u); err != nil {
		return domain.Usuario{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Usuario{}, err
	}
	return u, nil
}

// Login verifies credentials and mints a session token. Inactive users
// cannot log in.
func (s Service) Login(ctx context.Context, email, senha string) (domain.Usuario, string, error) {
	u, err := s.Repo.GetUsuarioPorEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err == repo.ErrNotFound {
		return domain.Usuario{}, "", ErrCredenciaisInvalidas
	}
	if err != nil {
		return domain.Usuario{}, "", err
	}
	if !u.Ativo {
		return domain.Usuario{}, "", ErrCredenciaisInvalidas
	}
	if bcrypt.CompareHashAndPassword([]byte(u.SenhaHash), []byte(senha)) != nil {
		return domain.Usuario{}, "", ErrCredenciaisInvalidas
	}
	token, err := s.EmitirToken(u)
	if err != nil {
		return domain.Usuario{}, "", err
	}
	return u, token, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Tipo  string `json:"tipo"`
}

func (s Service) EmitirToken(u domain.Usuario) (string, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := s.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl())),
		},
		Email: u.Email,
		Tipo:  string(u.Tipo),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Secret))
}

// VerificarToken parses and validates a session token, returning the user id
// and role it carries.
func (s Service) VerificarToken(token string) (string, domain.Papel, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return "", "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &sessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", "", ErrTokenInvalido
	}
	if claims.Subject == "" {
		return "", "", ErrTokenInvalido
	}
	return claims.Subject, domain.Papel(claims.Tipo), nil
}

// Autorizar enforces the role hierarchy: p must be at least necessario.
func Autorizar(p domain.Papel, necessario domain.Papel) error {
	if p.TemPermissao(necessario) {
		return nil
	}
	return ForbiddenError{Necessario: necessario}
}
