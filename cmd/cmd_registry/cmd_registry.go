// file: meshd/cmd/cmd_registry/cmd_registry.go
package cmd_registry

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rskv-p/meshd/config"
	"github.com/rskv-p/meshd/pkg/x_log"
	"github.com/rskv-p/meshd/registry"
)

var (
	addr    string
	auditDB string
)

var Cmd = &cobra.Command{
	Use:   "registry",
	Short: "Run the mesh Registry server",
	RunE:  run,
}

func init() {
	Cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides MESH_REGISTRY_ADDR)")
	Cmd.Flags().StringVar(&auditDB, "audit-db", "", "path to a SQLite audit log (disabled if empty)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.LoadWithFallback()
	if addr != "" {
		cfg.RegistryAddr = addr
	}

	srv := registry.New()
	if auditDB != "" {
		auditor, err := registry.OpenAuditor(auditDB)
		if err != nil {
			return fmt.Errorf("registry: open audit db: %w", err)
		}
		defer auditor.Close()
		srv = srv.WithAuditor(auditor)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	x_log.RootLogger().Structured().Info("starting registry", x_log.FString("addr", cfg.RegistryAddr))
	return srv.Serve(ctx, cfg.RegistryAddr)
}
