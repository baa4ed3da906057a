package redischeckpoint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/roma-engine/roma/checkpoint"
	"github.com/roma-engine/roma/graph"
)

// newTestClient starts a throwaway redis:7 container, mirroring the
// teacher's testcontainers-based store test setup (registry/store/mongo's
// setupMongoDB). Docker unavailability skips rather than fails.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	var container testcontainers.Container
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("docker not available: %v", r)
			}
		}()
		container, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
	}()
	if err != nil {
		t.Skipf("docker not available, skipping redis checkpoint integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
}

func TestSinkWriteReadRoundTrip(t *testing.T) {
	rdb := newTestClient(t)
	sink, err := New(rdb, Options{TTL: time.Minute})
	require.NoError(t, err)

	g := graph.New(3)
	rootID, err := g.CreateRoot("checkpoint me", graph.TaskThink)
	require.NoError(t, err)

	rr := checkpoint.RunRecord{
		RunID:     "run-redis-1",
		Graph:     g.Snapshot(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, rr))

	got, ok, err := sink.Read(ctx, "run-redis-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rr.RunID, got.RunID)
	require.Equal(t, rootID, got.Graph.RootID)
	require.Len(t, got.Graph.Nodes, 1)
}

func TestSinkReadMissingReturnsFalse(t *testing.T) {
	rdb := newTestClient(t)
	sink, err := New(rdb, Options{})
	require.NoError(t, err)

	_, ok, err := sink.Read(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}
