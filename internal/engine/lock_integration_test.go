//go:build integration

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) (config.RedisConfig, func()) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
		return config.RedisConfig{}, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := config.RedisConfig{Address: host + ":" + port.Port(), LockTTL: time.Minute}
	return cfg, func() { container.Terminate(ctx) }
}

func TestRedisLocker(t *testing.T) {
	cfg, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	first, err := NewRedisLocker(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer first.Close()
	second, err := NewRedisLocker(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer second.Close()

	release, err := first.Acquire(ctx, "models")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := second.Acquire(ctx, "models"); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked from the second holder, got %v", err)
	}

	otherRelease, err := second.Acquire(ctx, "other-models")
	if err != nil {
		t.Fatalf("Expected a different key to be free: %v", err)
	}
	otherRelease()

	release()
	release2, err := second.Acquire(ctx, "models")
	if err != nil {
		t.Fatalf("Expected lock to be free after release: %v", err)
	}

	// A stale release from the first holder must not drop the second holder's lock.
	release()
	if _, err := first.Acquire(ctx, "models"); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected lock to survive a stale release, got %v", err)
	}
	release2()
}

func TestRedisLocker_RenewsWhileHeld(t *testing.T) {
	cfg, cleanup := setupRedis(t)
	defer cleanup()
	cfg.LockTTL = 300 * time.Millisecond
	ctx := context.Background()

	first, err := NewRedisLocker(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer first.Close()
	second, err := NewRedisLocker(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer second.Close()

	release, err := first.Acquire(ctx, LockKey("models"))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Well past the TTL, the holder still owns the lock.
	time.Sleep(time.Second)
	if _, err := second.Acquire(ctx, LockKey("models")); !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected the lock to be renewed past its TTL, got %v", err)
	}

	release()
	time.Sleep(500 * time.Millisecond)
	release2, err := second.Acquire(ctx, LockKey("models"))
	if err != nil {
		t.Fatalf("Expected lock to be free after release: %v", err)
	}
	release2()
}

func TestNewRedisLocker_RequiresAddress(t *testing.T) {
	if _, err := NewRedisLocker(context.Background(), config.RedisConfig{}); err == nil {
		t.Error("Expected error for empty address")
	}
}
