package db

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-playground/internal/config"
	"rag-playground/internal/models"
)

func TestPQDSN(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:           "db.local",
		Port:           5433,
		User:           "app",
		Password:       "it's secret",
		Name:           "vectors",
		SSLMode:        "disable",
		ConnectTimeout: 5 * time.Second,
	}
	assert.Equal(t,
		`host=db.local port=5433 user=app password='it\'s secret' dbname=vectors sslmode=disable connect_timeout=5`,
		pqDSN(cfg))

	cfg.Password = ""
	assert.NotContains(t, pqDSN(cfg), "password")
}

func TestConnectDBFailsFast(t *testing.T) {
	cfg := config.Default().Database
	cfg.Host = "127.0.0.1"
	cfg.Port = 1 // nothing listens here
	cfg.ConnectTimeout = time.Second

	for _, driver := range []string{config.DriverPGDriver, config.DriverPQ} {
		cfg.Driver = driver
		_, err := ConnectDB(context.Background(), &cfg)
		assert.Error(t, err, driver)
	}
}

// testStore connects to the database named by TEST_DB_* variables and gives
// each test an empty files table.
func testStore(t *testing.T) *Store {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set")
	}

	cfg := config.Default().Database
	cfg.Host = host
	if p := os.Getenv("TEST_DB_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		require.NoError(t, err)
		cfg.Port = port
	}
	if v := os.Getenv("TEST_DB_USER"); v != "" {
		cfg.User = v
	}
	cfg.Password = os.Getenv("TEST_DB_PASS")
	if v := os.Getenv("TEST_DB_NAME"); v != "" {
		cfg.Name = v
	}

	ctx := context.Background()
	sqldb, err := ConnectDB(ctx, &cfg)
	require.NoError(t, err)

	bunDB := NewDB(sqldb, false)
	require.NoError(t, InitDB(ctx, bunDB))
	_, err = bunDB.NewTruncateTable().Model((*File)(nil)).Exec(ctx)
	require.NoError(t, err)

	store := NewStore(bunDB)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSearch(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	records := map[string][]float32{
		"origin": {0, 0, 0},
		"near":   {1, 0, 0},
		"far":    {3, 4, 0},
	}
	for _, name := range []string{"far", "origin", "near"} {
		require.NoError(t, store.Insert(ctx, name, records[name]))
	}

	results, err := store.Search(ctx, []float32{0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.SearchResult{Content: "origin", Distance: 0}, results[0])
	assert.Equal(t, "near", results[1].Content)
	assert.InDelta(t, 1.0, results[1].Distance, 1e-6)

	results, err = store.Search(ctx, []float32{0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "far", results[2].Content)
	assert.InDelta(t, 5.0, results[2].Distance, 1e-6)
}

func TestStoreSearchTiesKeepInsertionOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, store.Insert(ctx, name, []float32{1, 1}))
	}

	results, err := store.Search(ctx, []float32{1, 1}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Content)
	assert.Equal(t, "second", results[1].Content)
	assert.Equal(t, "third", results[2].Content)
}

func TestStoreSearchInvalidLimit(t *testing.T) {
	store := &Store{}
	_, err := store.Search(context.Background(), []float32{1}, 0)
	assert.ErrorIs(t, err, models.ErrInvalidLimit)
}
