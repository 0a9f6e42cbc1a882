package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
)

// Migrator creates the schema a single store plugin needs: collections,
// indexes, counter rows. Migrators must be idempotent because they run on
// every start when db-migrate-at-start is enabled, and again whenever the
// migrate sub-command is invoked against a live database.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin pairs a migrator with its position in the run order.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var registered []Plugin

// Register adds a migration plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	registered = append(registered, p)
}

// RunAll executes the registered migrators in Order. The first failure
// stops the run; later migrators do not execute.
func RunAll(ctx context.Context) error {
	plugins := make([]Plugin, len(registered))
	copy(plugins, registered)
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })

	for _, p := range plugins {
		log.Debug("Running migration", "name", p.Migrator.Name())
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}
