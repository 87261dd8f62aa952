// Package testutil starts throwaway backend containers for tests against
// the durable run stores. Containers are shared across the test binary;
// callers are skipped when no container runtime is available.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// runContainer wraps testcontainers.Run, converting the panic it raises when
// no container runtime can be located into an ordinary error so callers hit
// the documented skip path instead of crashing the test binary.
func runContainer(ctx context.Context, img string, opts ...testcontainers.ContainerCustomizer) (c testcontainers.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("container runtime unavailable: %v", r)
		}
	}()
	return testcontainers.Run(ctx, img, opts...)
}

// RedisAddress returns the host:port of a shared Redis container, starting
// it on first use. Tests are skipped when the container cannot start.
func RedisAddress(t *testing.T) string {
	t.Helper()

	redisOnce.Do(func() {
		// Give generous timeout in CI environments.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		redisC, err := runContainer(
			ctx, "redis:latest",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
		if err != nil {
			redisErr = err
			return
		}

		endpoint, err := redisC.Endpoint(ctx, "")
		if err != nil {
			_ = redisC.Terminate(context.Background()) // best-effort cleanup
			redisErr = err
			return
		}
		redisAddr = endpoint
	})

	if redisErr != nil {
		t.Skipf("redis container unavailable: %v", redisErr)
	}
	return redisAddr
}

var (
	postgresOnce sync.Once
	postgresDSN  string
	postgresErr  error
)

// PostgresDSN returns the connection string of a shared PostgreSQL
// container, starting it on first use. Tests are skipped when the container
// cannot start.
func PostgresDSN(t *testing.T) string {
	t.Helper()

	postgresOnce.Do(func() {
		// Give generous timeout in CI environments.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		postgresC, err := runContainer(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					// The log line appears twice: once during init, once for
					// the final server. Wait for the second occurrence.
					wait.ForLog("ready to accept connections").WithOccurrence(2),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "flowrun",
				"POSTGRES_PASSWORD": "flowrun",
				"POSTGRES_DB":       "flowrun_test",
			}),
		)
		if err != nil {
			postgresErr = err
			return
		}

		endpoint, err := postgresC.Endpoint(ctx, "")
		if err != nil {
			_ = postgresC.Terminate(context.Background()) // best-effort cleanup
			postgresErr = err
			return
		}
		postgresDSN = fmt.Sprintf("postgres://flowrun:flowrun@%s/flowrun_test?sslmode=disable", endpoint)
	})

	if postgresErr != nil {
		t.Skipf("postgres container unavailable: %v", postgresErr)
	}
	return postgresDSN
}
