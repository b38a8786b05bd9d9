package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"imovelcerto/internal/app"
	"imovelcerto/internal/config"
	"imovelcerto/internal/db"
	"imovelcerto/internal/domain"
	"imovelcerto/internal/engine/auth"
	"imovelcerto/internal/migrate"
	"imovelcerto/internal/repo"
	"imovelcerto/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ic",
	Short: "ImovelCerto CLI",
	Long: `ImovelCerto runs brokerage rental-demand operations.
Core concepts:
- Demanda: a client looking to rent; carries the target region and stays
  pendente until a captador takes it on.
- Missao: one captador hunting properties for one demanda, against a deadline.
- Roleta: the random draw that picks a captador among those eligible for the
  demanda region (captadores based in "Geral" are eligible everywhere).
- Historico: the append-only trail of every mission status change.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("IMOVELCERTO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (defaults to <workspace>/imovelcerto.yml when present)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(usuarioCmd())
	rootCmd.AddCommand(demandaCmd())
	rootCmd.AddCommand(missaoCmd())
	rootCmd.AddCommand(metricasCmd())
}

func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		candidate := filepath.Join(viper.GetString("workspace"), "imovelcerto.yml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("IMOVELCERTO_JWT_SECRET")
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, viper.GetString("workspace"), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if strings.TrimSpace(a.Config.Auth.JWTSecret) == "" {
					return fmt.Errorf("auth.jwt_secret is required (config file or IMOVELCERTO_JWT_SECRET)")
				}
				if addr != "" {
					a.Config.Server.Addr = addr
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: a.Config.Server.BasePath,
					Dev:      a.Config.Server.Dev,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: a.Config.Server.Addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving ImovelCerto API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
					a.Config.Server.Addr, a.Config.Server.BasePath, a.Config.Server.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := migrate.Version(a.DB)
				if err != nil {
					return err
				}
				fmt.Printf("database up to date (schema version %d)\n", v)
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the config file"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write an annotated imovelcerto.yml template",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(viper.GetString("workspace"), "imovelcerto.yml")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	return cfg
}

func usuarioCmd() *cobra.Command {
	u := &cobra.Command{Use: "usuario", Short: "Manage users"}
	u.AddCommand(usuarioCriarCmd())
	u.AddCommand(usuarioListarCmd())
	return u
}

func usuarioCriarCmd() *cobra.Command {
	var nome, email, senha, tipo, regiao string
	cmd := &cobra.Command{
		Use:   "criar",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				usr, err := a.Engine.Auth.Registrar(ctx, auth.RegistrarOptions{
					Nome:   nome,
					Email:  email,
					Senha:  senha,
					Tipo:   domain.Papel(tipo),
					Regiao: regiao,
				})
				if err != nil {
					return err
				}
				return printJSON(usr)
			})
		},
	}
	cmd.Flags().StringVar(&nome, "nome", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&senha, "senha", "", "password")
	cmd.Flags().StringVar(&tipo, "tipo", "captador", "role (captador, gerente_regional, admin, diretor)")
	cmd.Flags().StringVar(&regiao, "regiao", "", "home region")
	_ = cmd.MarkFlagRequired("nome")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("senha")
	return cmd
}

func usuarioListarCmd() *cobra.Command {
	var tipo, regiao string
	cmd := &cobra.Command{
		Use:   "listar",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListUsuarios(ctx, repo.UsuarioFilters{Tipo: tipo, Regiao: regiao})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Nome", "Email", "Tipo", "Regiao", "Ativo"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.Nome, u.Email, u.Tipo, u.Regiao, u.Ativo})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tipo, "tipo", "", "role filter")
	cmd.Flags().StringVar(&regiao, "regiao", "", "region filter")
	return cmd
}

func demandaCmd() *cobra.Command {
	d := &cobra.Command{Use: "demanda", Short: "Manage demands"}
	d.AddCommand(demandaListarCmd())
	return d
}

func demandaListarCmd() *cobra.Command {
	var status, regiao string
	cmd := &cobra.Command{
		Use:   "listar",
		Short: "List demands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListDemandas(ctx, repo.DemandaFilters{Status: status, Regiao: regiao})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Codigo", "Cliente", "Tipo", "Regiao", "Status", "Criada"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.CodigoDemanda, d.ClienteInteressado, d.TipoImovel, d.RegiaoDemanda, d.Status, d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&regiao, "regiao", "", "region filter")
	return cmd
}

func missaoCmd() *cobra.Command {
	m := &cobra.Command{Use: "missao", Short: "Manage missions"}
	m.AddCommand(missaoListarCmd())
	m.AddCommand(missaoExpirarCmd())
	return m
}

func missaoListarCmd() *cobra.Command {
	var status, captador string
	var ativas bool
	cmd := &cobra.Command{
		Use:   "listar",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListMissoes(ctx, repo.MissaoFilters{
					Status:     status,
					CaptadorID: captador,
					Ativas:     ativas,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Demanda", "Captador", "Status", "Limite", "Restante (min)"})
				for _, m := range items {
					captador := ""
					if m.CaptadorID != nil {
						captador = *m.CaptadorID
					}
					tw.AppendRow(table.Row{m.ID, m.DemandaID, captador, m.Status, m.DataLimite, a.Engine.TempoRestanteMinutos(m)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&captador, "captador-id", "", "captador filter")
	cmd.Flags().BoolVar(&ativas, "ativas", false, "only non-terminal missions")
	return cmd
}

func missaoExpirarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expirar",
		Short: "Time out every mission past its deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Engine.ExpirarVencidas(ctx, "")
				if err != nil {
					return err
				}
				fmt.Printf("expired %d mission(s)\n", n)
				return nil
			})
		},
	}
}

func metricasCmd() *cobra.Command {
	var regiao string
	cmd := &cobra.Command{
		Use:   "metricas",
		Short: "Show dashboard metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				met, err := a.Engine.CalcularMetricas(ctx, regiao)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(met)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metrica", "Valor"})
				tw.AppendRow(table.Row{"total_demandas", met.TotalDemandas})
				tw.AppendRow(table.Row{"demandas_pendentes", met.DemandasPendentes})
				tw.AppendRow(table.Row{"demandas_em_captacao", met.DemandasEmCaptacao})
				tw.AppendRow(table.Row{"demandas_concluidas", met.DemandasConcluidas})
				tw.AppendRow(table.Row{"total_missoes", met.TotalMissoes})
				tw.AppendRow(table.Row{"missoes_ativas", met.MissoesAtivas})
				tw.AppendRow(table.Row{"missoes_sucesso", met.MissoesSucesso})
				tw.AppendRow(table.Row{"missoes_tempo_esgotado", met.MissoesTempoEsgotado})
				tw.AppendRow(table.Row{"tempo_medio_conclusao_horas", fmt.Sprintf("%.1f", met.TempoMedioConclusaoHoras)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&regiao, "regiao", "", "region filter")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
