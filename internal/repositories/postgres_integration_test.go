package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidfriends/accounts/internal/models"
)

var testPool *pgxpool.Pool

func integrationEnabled() bool {
	return os.Getenv("VIDFRIENDS_INTEGRATION") != ""
}

func TestMain(m *testing.M) {
	if !integrationEnabled() {
		os.Exit(m.Run())
	}

	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func postgresStore(t *testing.T) Store {
	t.Helper()
	if testPool == nil {
		t.Skip("set VIDFRIENDS_INTEGRATION to run against a cockroach test server")
	}
	resetDatabase(t)
	return NewPostgresStore(testPool)
}

func TestPostgresAccountRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := postgresStore(t)

	account := newTestAccount("alice")
	if err := store.Accounts.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	dup := newTestAccount("ALICE")
	if err := store.Accounts.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate handle, got %v", err)
	}

	fetched, err := store.Accounts.FindByHandle(ctx, "Alice")
	if err != nil {
		t.Fatalf("find by handle: %v", err)
	}
	if fetched.ID != account.ID || fetched.PasswordHash != account.PasswordHash {
		t.Fatalf("unexpected account fetched: %+v", fetched)
	}
	if fetched.WatchHistory == nil || len(fetched.WatchHistory) != 0 {
		t.Fatalf("expected empty watch history, got %#v", fetched.WatchHistory)
	}

	if err := store.Accounts.UpdateDetails(ctx, account.ID, "Alice Liddell", "liddell@example.com"); err != nil {
		t.Fatalf("update details: %v", err)
	}
	fetched, err = store.Accounts.FindByEmail(ctx, "liddell@example.com")
	if err != nil {
		t.Fatalf("find by updated email: %v", err)
	}
	if fetched.FullName != "Alice Liddell" {
		t.Fatalf("expected updated full name, got %q", fetched.FullName)
	}

	if err := store.Accounts.SetAvatar(ctx, uuid.NewString(), "https://cdn.example.com/a.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing account, got %v", err)
	}
}

func TestPostgresAccountRepository_RefreshTokenCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := postgresStore(t)

	account := newTestAccount("bob")
	if err := store.Accounts.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	if err := store.Accounts.SetRefreshToken(ctx, account.ID, "r1"); err != nil {
		t.Fatalf("set refresh token: %v", err)
	}
	if err := store.Accounts.ReplaceRefreshToken(ctx, account.ID, "r1", "r2"); err != nil {
		t.Fatalf("rotate refresh token: %v", err)
	}
	if err := store.Accounts.ReplaceRefreshToken(ctx, account.ID, "r1", "r3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound replaying a rotated token, got %v", err)
	}

	if err := store.Accounts.SetRefreshToken(ctx, account.ID, ""); err != nil {
		t.Fatalf("clear refresh token: %v", err)
	}
	fetched, err := store.Accounts.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.RefreshToken != "" {
		t.Fatalf("expected refresh token to be cleared, got %q", fetched.RefreshToken)
	}
}

func TestPostgresChannelQueries_ProfileAndHistory(t *testing.T) {
	ctx := context.Background()
	store := postgresStore(t)

	channel := newTestAccount("chan")
	viewer := newTestAccount("viewer")
	other := newTestAccount("other")
	for _, a := range []models.Account{channel, viewer, other} {
		if err := store.Accounts.Create(ctx, a); err != nil {
			t.Fatalf("create %s: %v", a.Handle, err)
		}
	}

	for _, edge := range [][2]string{{viewer.ID, channel.ID}, {other.ID, channel.ID}, {channel.ID, other.ID}} {
		sub := models.Subscription{ID: uuid.NewString(), Subscriber: edge[0], Channel: edge[1], CreatedAt: time.Now().UTC()}
		if err := store.Subscriptions.Create(ctx, sub); err != nil {
			t.Fatalf("create subscription: %v", err)
		}
	}
	dup := models.Subscription{ID: uuid.NewString(), Subscriber: viewer.ID, Channel: channel.ID, CreatedAt: time.Now().UTC()}
	if err := store.Subscriptions.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate edge, got %v", err)
	}

	profile, err := store.Channels.ChannelProfile(ctx, "CHAN", viewer.ID)
	if err != nil {
		t.Fatalf("channel profile: %v", err)
	}
	if profile.SubscribersCount != 2 || profile.SubscribedToCount != 1 || !profile.IsSubscribed {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	anonymous, err := store.Channels.ChannelProfile(ctx, "chan", "")
	if err != nil {
		t.Fatalf("anonymous channel profile: %v", err)
	}
	if anonymous.IsSubscribed {
		t.Fatalf("expected anonymous viewer not to be subscribed")
	}

	if _, err := store.Channels.ChannelProfile(ctx, "ghost", viewer.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown channel, got %v", err)
	}

	first := newTestVideo(channel.ID, "first")
	second := newTestVideo(other.ID, "second")
	for _, v := range []models.Video{first, second} {
		if err := store.Videos.Create(ctx, v); err != nil {
			t.Fatalf("create video: %v", err)
		}
	}
	for _, id := range []string{second.ID, first.ID, second.ID} {
		if err := store.Accounts.AppendWatchHistory(ctx, viewer.ID, id); err != nil {
			t.Fatalf("append watch history: %v", err)
		}
	}

	history, err := store.Channels.WatchHistory(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("watch history: %v", err)
	}
	if len(history) != 3 || history[0].ID != second.ID || history[1].ID != first.ID || history[2].ID != second.ID {
		t.Fatalf("unexpected history order: %+v", history)
	}
	if history[1].Owner.Handle != channel.Handle {
		t.Fatalf("expected owner handle %q, got %q", channel.Handle, history[1].Owner.Handle)
	}

	empty, err := store.Channels.WatchHistory(ctx, other.ID)
	if err != nil {
		t.Fatalf("empty watch history: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", empty)
	}

	if err := store.Subscriptions.Delete(ctx, viewer.ID, channel.ID); err != nil {
		t.Fatalf("delete subscription: %v", err)
	}
	if err := store.Subscriptions.Delete(ctx, viewer.ID, channel.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestPostgresVideoRepository_IncrementViews(t *testing.T) {
	ctx := context.Background()
	store := postgresStore(t)

	owner := newTestAccount("owner")
	if err := store.Accounts.Create(ctx, owner); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	video := newTestVideo(owner.ID, "clip")
	if err := store.Videos.Create(ctx, video); err != nil {
		t.Fatalf("create video: %v", err)
	}
	if err := store.Videos.IncrementViews(ctx, video.ID); err != nil {
		t.Fatalf("increment views: %v", err)
	}

	fetched, err := store.Videos.FindByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("find video: %v", err)
	}
	if fetched.Views != 1 {
		t.Fatalf("expected 1 view, got %d", fetched.Views)
	}

	if err := store.Videos.IncrementViews(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE watch_history, subscriptions, videos, accounts CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
