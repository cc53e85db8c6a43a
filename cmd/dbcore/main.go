// Package main is the entry point for the database access core process.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/fx"

	"github.com/iruldev/dbcore/internal/catalog"
	"github.com/iruldev/dbcore/internal/eventbus"
	fxmodule "github.com/iruldev/dbcore/internal/infra/fx"
	"github.com/iruldev/dbcore/internal/poolcore"
	"github.com/iruldev/dbcore/internal/queryengine"
)

func main() {
	app := fx.New(
		fxmodule.Module,
		fx.Invoke(run),
	)
	app.Run()

	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run wires nothing new; it only confirms every core dependency resolved
// and logs readiness. The registry, engine, and catalog are consumed by
// whatever external surface (HTTP/WebSocket) embeds this core; Fx's own
// lifecycle hooks handle registry/tracer teardown on shutdown.
func run(
	logger *slog.Logger,
	registry *poolcore.Registry,
	engine *queryengine.Engine,
	cat *catalog.Catalog,
	bus *eventbus.Bus,
) {
	logger.Info("database access core ready")
}
