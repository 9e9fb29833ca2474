package lookup

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPGCatalogRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		postgres.WithDatabase("rowforge"),
		postgres.WithUsername("rowforge"),
		postgres.WithPassword("rowforge"),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	cat, err := OpenPGCatalog(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPGCatalog: %v", err)
	}
	defer cat.Close()

	if err := cat.Record(ctx, "countries", "countries.csv"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := cat.Record(ctx, "countries", "countries_v2.csv"); err != nil {
		t.Fatalf("Record (update): %v", err)
	}

	entries, err := cat.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Source != "countries_v2.csv" {
		t.Errorf("entries[0].Source = %q, want countries_v2.csv", entries[0].Source)
	}
}

func TestNilPGCatalogIsNoop(t *testing.T) {
	var cat *PGCatalog
	if err := cat.Record(context.Background(), "x", "y"); err != nil {
		t.Errorf("nil catalogue Record: %v", err)
	}
	entries, err := cat.Entries(context.Background())
	if err != nil || entries != nil {
		t.Errorf("nil catalogue Entries = %v, %v; want nil, nil", entries, err)
	}
	cat.Close() // must not panic
}
