// Package modules assembles the units app.Bootstrap composes: shared
// infrastructure plus one module per domain (today only notifications).
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"fieldops.io/fieldops/internal/api/handlers"
)

// Module is a domain unit in the composition root. Bootstrap collects its
// server deps, River workers and periodic jobs, then shuts it down in
// registration order.
type Module interface {
	Name() string

	// ContributeServerDeps fills the handler dependencies the module owns.
	ContributeServerDeps(*handlers.ServerDeps)

	RegisterWorkers(*river.Workers)

	// PeriodicJobs are handed to the River client at construction.
	PeriodicJobs() []*river.PeriodicJob

	// Shutdown releases module-owned resources after River has stopped.
	Shutdown(context.Context) error
}
