package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"ctfoj/internal/challenge/repository"
	"ctfoj/internal/common/cache"
	"ctfoj/internal/common/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// dataTable emulates the data table for the two statements the
// repository issues.
type dataTable struct {
	values map[string][]byte
	reads  int
}

func (d *dataTable) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, errors.New("not supported")
}

func (d *dataTable) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	d.reads++
	value, ok := d.values[fmt.Sprint(args[0], "/", args[1])]
	return byteRow{value: value, ok: ok}
}

func (d *dataTable) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	d.values[fmt.Sprint(args[0], "/", args[1])] = args[2].([]byte)
	return nil, nil
}

func (d *dataTable) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return errors.New("not supported")
}

func (d *dataTable) Ping(ctx context.Context) error { return nil }

func (d *dataTable) Close() error { return nil }

type byteRow struct {
	value []byte
	ok    bool
}

func (r byteRow) Scan(dest ...interface{}) error {
	if !r.ok {
		return fmt.Errorf("scan failed: %w", sql.ErrNoRows)
	}
	*dest[0].(*[]byte) = r.value
	return nil
}

func newDataRepo(t *testing.T) (*repository.DataRepository, *dataTable) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new redis cache failed: %v", err)
	}
	table := &dataTable{values: make(map[string][]byte)}
	return repository.NewDataRepository(table, redisCache), table
}

type progress struct {
	Stage int      `json:"stage"`
	Seen  []string `json:"seen"`
}

func TestDataRepositoryRoundTrip(t *testing.T) {
	repo, table := newDataRepo(t)
	ctx := context.Background()

	var got progress
	found, err := repo.GetData(ctx, "Basic(a)", "progress", &got)
	if err != nil || found {
		t.Fatalf("expected absent value, got %v, %v", found, err)
	}
	found, _ = repo.GetData(ctx, "Basic(a)", "progress", &got)
	if found || table.reads != 1 {
		t.Fatalf("expected the miss to be cached, reads = %d", table.reads)
	}

	want := progress{Stage: 2, Seen: []string{"alice"}}
	if err := repo.SetData(ctx, "Basic(a)", "progress", want); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	found, err = repo.GetData(ctx, "Basic(a)", "progress", &got)
	if err != nil || !found {
		t.Fatalf("expected stored value, got %v, %v", found, err)
	}
	if got.Stage != 2 || len(got.Seen) != 1 || got.Seen[0] != "alice" {
		t.Fatalf("unexpected value %+v", got)
	}
	if table.reads != 2 {
		t.Fatalf("write should invalidate the cached miss, reads = %d", table.reads)
	}

	if _, err := repo.GetData(ctx, "Basic(a)", "progress", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if table.reads != 2 {
		t.Fatalf("expected cached read, reads = %d", table.reads)
	}

	if found, _ := repo.GetData(ctx, "Basic(b)", "progress", &got); found {
		t.Fatalf("values must be scoped per challenge")
	}
}

func TestDataRepositoryWithoutCache(t *testing.T) {
	table := &dataTable{values: map[string][]byte{"Basic(a)/n": []byte("not json")}}
	repo := repository.NewDataRepository(table, nil)

	var n int
	if _, err := repo.GetData(context.Background(), "Basic(a)", "n", &n); err == nil {
		t.Fatalf("expected undecodable value to fail")
	}
	if err := repo.SetData(context.Background(), "Basic(a)", "n", 7); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	found, err := repo.GetData(context.Background(), "Basic(a)", "n", &n)
	if err != nil || !found || n != 7 {
		t.Fatalf("unexpected read back %d, %v, %v", n, found, err)
	}
}
