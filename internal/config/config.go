// Package config loads the service configuration from imovelcerto.yml.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	// Dev exposes internal error detail in API responses.
	Dev bool `yaml:"dev"`
}

type Auth struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHoras int    `yaml:"token_ttl_horas"`
}

type Missoes struct {
	// PrazoPadraoHoras applies when the demanda region has no active
	// regional override.
	PrazoPadraoHoras    int `yaml:"prazo_padrao_horas"`
	LimiarUrgenciaHoras int `yaml:"limiar_urgencia_horas"`
}

type SeedAdmin struct {
	Nome  string `yaml:"nome"`
	Email string `yaml:"email"`
	Senha string `yaml:"senha"`
}

type SeedRegiao struct {
	Regiao           string `yaml:"regiao"`
	PrazoPadraoHoras int    `yaml:"prazo_padrao_horas"`
	MetaCaptacoesMes *int   `yaml:"meta_captacoes_mes,omitempty"`
}

type Seed struct {
	Admin   *SeedAdmin   `yaml:"admin,omitempty"`
	Regioes []SeedRegiao `yaml:"regioes,omitempty"`
}

type Config struct {
	Server  Server  `yaml:"server"`
	Auth    Auth    `yaml:"auth"`
	Missoes Missoes `yaml:"missoes"`
	Seed    Seed    `yaml:"seed"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Addr:     ":8080",
			BasePath: "/api",
		},
		Auth: Auth{
			TokenTTLHoras: 24,
		},
		Missoes: Missoes{
			PrazoPadraoHoras:    48,
			LimiarUrgenciaHoras: 6,
		},
	}
}

// Load reads path and overlays it on the defaults. A missing file is an
// error; call Default directly when no file is expected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Missoes.PrazoPadraoHoras <= 0 {
		return errors.New("missoes.prazo_padrao_horas must be positive")
	}
	if c.Missoes.LimiarUrgenciaHoras < 0 {
		return errors.New("missoes.limiar_urgencia_horas must not be negative")
	}
	if c.Auth.TokenTTLHoras <= 0 {
		return errors.New("auth.token_ttl_horas must be positive")
	}
	for _, r := range c.Seed.Regioes {
		if r.Regiao == "" {
			return errors.New("seed.regioes entries require a regiao")
		}
		if r.PrazoPadraoHoras <= 0 {
			return fmt.Errorf("seed.regioes[%s].prazo_padrao_horas must be positive", r.Regiao)
		}
	}
	return nil
}

// Template is the annotated config written by `ic config init`.
const Template = `# imovelcerto service configuration
server:
  addr: ":8080"
  base_path: "/api"
  dev: false

auth:
  jwt_secret: "change-me"
  token_ttl_horas: 24

missoes:
  prazo_padrao_horas: 48
  limiar_urgencia_horas: 6

# Optional bootstrap data applied once on startup.
seed:
  admin:
    nome: "Administrador"
    email: "admin@imovelcerto.local"
    senha: "troque-esta-senha"
  regioes:
    - regiao: "Centro"
      prazo_padrao_horas: 48
    - regiao: "Zona Norte"
      prazo_padrao_horas: 72
`
