//go:build integration

package mariadb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/kozaktomas/cornea/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (config.DatabaseConfig, bool) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mariadb:11",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MARIADB_USER":          "test",
			"MARIADB_PASSWORD":      "test",
			"MARIADB_DATABASE":      "testdb",
			"MARIADB_ROOT_PASSWORD": "root",
		},
		WaitingFor: wait.ForLog("ready for connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return config.DatabaseConfig{}, false
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return config.DatabaseConfig{
		URL:          fmt.Sprintf("mysql://test:test@%s:%s/testdb", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}, true
}

func TestStore(t *testing.T) {
	cfg, ok := setupTestContainer(t)
	if !ok {
		return
	}
	ctx := context.Background()

	store, err := database.Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	jan, err := store.CreatePerson(ctx, "Jan", "Novák")
	if err != nil {
		t.Fatalf("Failed to create person: %v", err)
	}
	eva, err := store.CreatePerson(ctx, "Eva", "Dvořáková")
	if err != nil {
		t.Fatalf("Failed to create person: %v", err)
	}

	got, err := store.GetPerson(ctx, jan.ID)
	if err != nil || got.LastName != "Novák" {
		t.Fatalf("Unexpected person %+v (%v)", got, err)
	}
	if _, err := store.GetPerson(ctx, 999999); !errors.Is(err, database.ErrPersonNotFound) {
		t.Errorf("Expected ErrPersonNotFound, got %v", err)
	}

	found, err := store.FindPersonsByName(ctx, "novak")
	if err != nil || len(found) != 1 || found[0].ID != jan.ID {
		t.Errorf("Expected Jan, got %+v (%v)", found, err)
	}

	for _, tag := range []int{jan.ID, eva.ID, eva.ID} {
		if _, err := store.StoreFace(ctx, tag, []byte{0xff, 0xd8, byte(tag)}); err != nil {
			t.Fatalf("Failed to store face: %v", err)
		}
	}
	if _, err := store.StoreFace(ctx, 999999, []byte{1}); !errors.Is(err, database.ErrPersonNotFound) {
		t.Errorf("Expected ErrPersonNotFound for unknown tag, got %v", err)
	}

	counts, err := store.CountFaces(ctx)
	if err != nil {
		t.Fatalf("Failed to count faces: %v", err)
	}
	if len(counts) != 2 || counts[0].Tag != jan.ID || counts[1].Count != 2 {
		t.Errorf("Unexpected counts %+v", counts)
	}

	corpus, err := database.Corpus(ctx, store)
	if err != nil || len(corpus) != 3 || corpus[1].Label != eva.ID {
		t.Errorf("Unexpected corpus %+v (%v)", corpus, err)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	cfg, ok := setupTestContainer(t)
	if !ok {
		return
	}
	ctx := context.Background()

	pool, err := NewPool(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	defer pool.Close()

	for range 2 {
		if err := pool.Migrate(ctx); err != nil {
			t.Fatalf("Failed to migrate: %v", err)
		}
	}
	applied, err := database.AppliedMigrations(ctx, pool.db)
	if err != nil {
		t.Fatalf("Failed to read applied migrations: %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("Expected 2 applied migrations, got %v", applied)
	}
}
