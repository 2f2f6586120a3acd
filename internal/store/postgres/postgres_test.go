package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rusel95/interexchangebot/internal/domain"
)

type fakeStore struct {
	domain.OpportunityStore
	inserted []domain.JournalEntry
}

func (f *fakeStore) Insert(_ context.Context, entries []domain.JournalEntry) error {
	f.inserted = append(f.inserted, entries...)
	return nil
}

func testOpp(t *testing.T, symbol string, at time.Time) domain.ArbOpportunity {
	t.Helper()
	opp, err := domain.NewArbOpportunity(symbol, domain.ExchangeKuCoin, domain.ExchangeBinance, 98, 101, at)
	require.NoError(t, err)
	return opp
}

func TestJournal_RecordOpportunities(t *testing.T) {
	store := &fakeStore{}
	j := NewJournal(store)
	n := 0
	j.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	summary := domain.CycleSummary{CycleID: "cycle-7"}

	require.NoError(t, j.RecordOpportunities(context.Background(), summary, nil))
	assert.Empty(t, store.inserted)

	opps := []domain.ArbOpportunity{testOpp(t, "BTCUSDT", at), testOpp(t, "ETHUSDT", at)}
	require.NoError(t, j.RecordOpportunities(context.Background(), summary, opps))

	require.Len(t, store.inserted, 2)
	assert.Equal(t, "id-1", store.inserted[0].ID)
	assert.Equal(t, "id-2", store.inserted[1].ID)
	assert.Equal(t, "cycle-7", store.inserted[0].CycleID)
	assert.Equal(t, opps[1], store.inserted[1].ArbOpportunity)
	assert.Equal(t, "postgres", j.Name())
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/arb?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "arb"}))
	assert.Equal(t, "postgres://u:p@db:6543/arb?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "arb", SSLMode: "require"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func setupTestPostgres(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{
		Host:     host,
		Port:     port.Int(),
		Database: "testdb",
		User:     "testuser",
		Password: "testpassword",
		MaxConns: 4,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NoError(t, c.RunMigrations(ctx))
	return c
}

func TestPostgresIntegration(t *testing.T) {
	c := setupTestPostgres(t)
	ctx := context.Background()

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, c.RunMigrations(ctx))

		var n int
		require.NoError(t, c.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n))
		assert.Equal(t, 2, n)
	})

	t.Run("opportunity journal", func(t *testing.T) {
		store := NewOpportunityStore(c.Pool())
		j := NewJournal(store)

		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		old := []domain.ArbOpportunity{testOpp(t, "BTCUSDT", base), testOpp(t, "ETHUSDT", base.Add(time.Minute))}
		fresh := []domain.ArbOpportunity{testOpp(t, "XRPUSDT", base.Add(48*time.Hour))}

		require.NoError(t, j.RecordOpportunities(ctx, domain.CycleSummary{CycleID: "c1"}, old))
		require.NoError(t, j.RecordOpportunities(ctx, domain.CycleSummary{CycleID: "c2"}, fresh))

		recent, err := store.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "XRPUSDT", recent[0].Symbol)
		assert.Equal(t, "c2", recent[0].CycleID)
		assert.Equal(t, domain.ExchangeKuCoin, recent[0].BuyExchange)
		assert.Equal(t, domain.ExchangeBinance, recent[0].SellExchange)
		assert.InDelta(t, 3.0612, recent[0].ProfitPercent, 0.0001)
		assert.Equal(t, "ETHUSDT", recent[1].Symbol)

		cutoff := base.Add(24 * time.Hour)
		before, err := store.ListBefore(ctx, cutoff)
		require.NoError(t, err)
		require.Len(t, before, 2)
		assert.Equal(t, "BTCUSDT", before[0].Symbol)
		assert.True(t, before[0].DetectedAt.Equal(base))

		// Re-inserting an existing row is a no-op.
		require.NoError(t, store.Insert(ctx, before[:1]))

		deleted, err := store.DeleteBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		all, err := store.ListRecent(ctx, 0)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "XRPUSDT", all[0].Symbol)
	})

	t.Run("alert log", func(t *testing.T) {
		log := NewAlertLog(c.Pool())

		require.NoError(t, log.Send(ctx, "arbbot: job prices failed", "no exchange returned data"))
		require.NoError(t, log.Log(ctx, "arbbot: bootstrap failed", map[string]any{"symbols": float64(0)}))

		entries, err := log.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "arbbot: bootstrap failed", entries[0].Subject)
		assert.Equal(t, "no exchange returned data", entries[1].Detail["message"])
	})
}
