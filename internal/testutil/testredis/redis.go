// Package testredis spins up a throwaway Redis for summary cache
// integration tests. Callers should skip under testing.Short().
package testredis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image = "redis:7"
	port  = "6379/tcp"
)

// StartRedis runs a Redis container for the duration of the test and
// returns a redis:// URL for it. The container is terminated in t.Cleanup.
func StartRedis(tb testing.TB) string {
	tb.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port},
			WaitingFor:   wait.ForListeningPort(port).WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
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

	host, err := container.Host(ctx)
	if err != nil {
		tb.Fatalf("redis host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		tb.Fatalf("redis mapped port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, mapped.Port())
}
