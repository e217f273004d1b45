package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"union-live/internal/domain"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed repository tests in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}
	if err := runMigrations(ctx, pool); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return pool
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}
	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		content, err := os.ReadFile(filepath.Join(migrationDir, filename))
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}
	return nil
}

func seedPair(t *testing.T, pool *pgxpool.Pool, first, second string, count int) int {
	t.Helper()
	var id int
	err := pool.QueryRow(context.Background(), `
		INSERT INTO swap_pairs (first_name, second_name, swap_count) VALUES ($1, $2, $3) RETURNING id
	`, first, second, count).Scan(&id)
	if err != nil {
		t.Fatalf("seed pair: %v", err)
	}
	return id
}

func TestOrdersRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewOrders(pool)

	if err := repo.SetBarOpen(ctx, true); err != nil {
		t.Fatal(err)
	}

	mixer := "lemonade"
	order := domain.Order{
		OrderedBy:   "Jo Bloggs",
		Email:       "jb000",
		OrderedAt:   time.Now().UTC().Truncate(time.Millisecond),
		TableNumber: 7,
		TotalPrice:  decimal.RequireFromString("8.70"),
		Contents: []domain.OrderContent{
			{Name: "gin", Size: "double", Mixer: &mixer, Quantity: 2, Price: decimal.RequireFromString("3.75")},
			{Name: "cola", Quantity: 1, Price: decimal.RequireFromString("1.20")},
		},
	}
	if err := repo.InsertOrder(ctx, &order); err != nil {
		t.Fatal(err)
	}
	if order.ID == 0 || order.Contents[0].ID == 0 {
		t.Fatal("insert did not assign ids")
	}

	if err := repo.MarkContentComplete(ctx, order.ID, order.Contents[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkOrderPaid(ctx, order.ID); err != nil {
		t.Fatal(err)
	}

	orders, open, err := repo.LoadBar(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !open {
		t.Error("bar should be open")
	}
	if len(orders) != 1 {
		t.Fatalf("active orders = %d, want 1", len(orders))
	}
	got := orders[0]
	if got.OrderedBy != "Jo Bloggs" || got.TableNumber != 7 || !got.Paid {
		t.Errorf("loaded order wrong: %+v", got)
	}
	if !got.TotalPrice.Equal(order.TotalPrice) {
		t.Errorf("total = %s, want %s", got.TotalPrice, order.TotalPrice)
	}
	if len(got.Contents) != 2 {
		t.Fatalf("contents = %d, want 2", len(got.Contents))
	}
	if !got.Contents[0].Completed || got.Contents[1].Completed {
		t.Error("content completion flags wrong")
	}
	if got.Contents[0].Mixer == nil || *got.Contents[0].Mixer != "lemonade" {
		t.Error("mixer not round-tripped")
	}

	if err := repo.MarkOrderCompleted(ctx, order.ID); err != nil {
		t.Fatal(err)
	}
	orders, _, err = repo.LoadBar(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Fatalf("completed order still active: %d", len(orders))
	}
}

func TestRecordSwapDebitsCredit(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSwap(pool)

	idA := seedPair(t, pool, "Alice", "Bob", 2)
	idB := seedPair(t, pool, "Cam", "Dee", 0)
	if _, _, _, err := repo.RecordDonation(ctx, "jb000", "pi_seed", 500); err != nil {
		t.Fatal(err)
	}

	first := domain.SwapPair{ID: idA, First: "Cam", Second: "Bob", Count: 3}
	second := domain.SwapPair{ID: idB, First: "Alice", Second: "Dee", Count: 1}
	balance, history, err := repo.RecordSwap(ctx, first, second, "jb000", 200)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 300 {
		t.Errorf("balance = %d, want 300", balance)
	}
	if len(history) != 2 || history[1].Type != domain.CreditSwap || history[1].Amount != -200 {
		t.Errorf("history wrong: %+v", history)
	}

	pairs, _, err := repo.LoadSwap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	gotA, _ := pairByID(pairs, idA)
	gotB, _ := pairByID(pairs, idB)
	if gotA != first || gotB != second {
		t.Errorf("pairs not persisted: %+v / %+v", gotA, gotB)
	}

	// a second swap costing more than the remaining balance must not debit
	_, _, err = repo.RecordSwap(ctx, first, second, "jb000", 400)
	if !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("err = %v, want ErrInsufficientCredit", err)
	}
	balance, _, err = repo.Credit(ctx, "jb000")
	if err != nil {
		t.Fatal(err)
	}
	if balance != 300 {
		t.Errorf("balance after rejected swap = %d, want 300", balance)
	}
}

func TestRecordSwapUnknownMember(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSwap(pool)

	idA := seedPair(t, pool, "Alice", "Bob", 0)
	idB := seedPair(t, pool, "Cam", "Dee", 0)
	_, _, err := repo.RecordSwap(ctx, domain.SwapPair{ID: idA}, domain.SwapPair{ID: idB}, "nobody", 50)
	if !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("err = %v, want ErrInsufficientCredit", err)
	}
}

func TestRecordDonationIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSwap(pool)

	balance, history, credited, err := repo.RecordDonation(ctx, "jb000", "pi_1", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !credited || balance != 1000 {
		t.Fatalf("first confirm: credited=%v balance=%d", credited, balance)
	}
	if len(history) != 1 || history[0].Type != domain.CreditDonation || history[0].Amount != 1000 {
		t.Errorf("history wrong: %+v", history)
	}

	balance, _, credited, err = repo.RecordDonation(ctx, "jb000", "pi_1", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if credited {
		t.Error("replayed intent must not credit")
	}
	if balance != 1000 {
		t.Errorf("balance after replay = %d, want 1000", balance)
	}

	balance, _, credited, err = repo.RecordDonation(ctx, "jb000", "pi_2", 400)
	if err != nil {
		t.Fatal(err)
	}
	if !credited || balance != 1400 {
		t.Fatalf("second intent: credited=%v balance=%d", credited, balance)
	}
}

func TestCreditUnknownMember(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSwap(pool)

	balance, history, err := repo.Credit(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if balance != 0 || history != nil {
		t.Errorf("unknown member should have zero balance, got %d / %v", balance, history)
	}
}

func TestSwapOpenFlag(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSwap(pool)

	_, open, err := repo.LoadSwap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if open {
		t.Error("swap should start closed")
	}
	if err := repo.SetSwapOpen(ctx, true); err != nil {
		t.Fatal(err)
	}
	_, open, err = repo.LoadSwap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !open {
		t.Error("swap open flag not persisted")
	}
}

func pairByID(pairs []domain.SwapPair, id int) (domain.SwapPair, bool) {
	for _, p := range pairs {
		if p.ID == id {
			return p, true
		}
	}
	return domain.SwapPair{}, false
}
