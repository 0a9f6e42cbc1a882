// Package testmongo spins up a throwaway MongoDB for store integration
// tests. Callers should skip under testing.Short().
package testmongo

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

const image = "mongo:7"

// StartMongo runs a MongoDB container for the duration of the test and
// returns its connection URI. The container is terminated in t.Cleanup.
func StartMongo(tb testing.TB) string {
	tb.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, image)
	if err != nil {
		tb.Fatalf("run %s container: %v", image, err)
	}
	tb.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(stopCtx); err != nil {
			tb.Errorf("terminate %s container: %v", image, err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("mongodb connection string: %v", err)
	}
	return uri
}
