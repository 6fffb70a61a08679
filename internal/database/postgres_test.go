package database

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresStore runs the store suite against a throwaway PostgreSQL
// container. Set DROPWATCH_PG_TEST=1 to enable it; it needs Docker.
func TestPostgresStore(t *testing.T) {
	if os.Getenv("DROPWATCH_PG_TEST") == "" {
		t.Skip("DROPWATCH_PG_TEST not set")
	}
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "dropwatch",
				"POSTGRES_PASSWORD": "dropwatch",
				"POSTGRES_DB":       "dropwatch",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Error(err)
		}
	})

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}
	connStr := fmt.Sprintf("postgres://dropwatch:dropwatch@%s:%s/dropwatch?sslmode=disable", host, port.Port())

	runStoreSuite(t, func(t *testing.T) testStore {
		t.Helper()
		db, err := NewPostgres(connStr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := db.conn.Exec("TRUNCATE releases, shoe_details"); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { db.Close() })
		return db
	})
}
