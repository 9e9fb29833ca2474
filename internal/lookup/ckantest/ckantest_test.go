package ckantest

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestCatalogueRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		postgres.WithDatabase("ckan"),
		postgres.WithUsername("ckan"),
		postgres.WithPassword("ckan"),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	cat, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cat.Close()

	if err := cat.PutResource("res-1", "https://example.org/res-1.csv"); err != nil {
		t.Fatalf("PutResource: %v", err)
	}

	url, err := cat.ResourceURL("res-1")
	if err != nil {
		t.Fatalf("ResourceURL: %v", err)
	}
	if url != "https://example.org/res-1.csv" {
		t.Errorf("ResourceURL = %q, want %q", url, "https://example.org/res-1.csv")
	}

	if _, err := cat.ResourceURL("missing"); err == nil {
		t.Errorf("ResourceURL(missing) = nil error, want not-found error")
	}
}
