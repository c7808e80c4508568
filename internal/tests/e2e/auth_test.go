//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/identserv/identityd/config"
	"github.com/identserv/identityd/internal/db"
	"github.com/identserv/identityd/internal/server"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setTestEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAuthLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	alice := "alice_" + suffix
	bob := "bob_" + suffix

	client := newCookieClient(t)

	if err := registerUser(t, client, baseURL, alice, "testpass123!"); err != nil {
		t.Fatalf("register %s: %v", alice, err)
	}
	if err := registerUser(t, client, baseURL, bob, "testpass123!"); err != nil {
		t.Fatalf("register %s: %v", bob, err)
	}

	// A duplicate registration must be refused while the account is live.
	if err := registerUser(t, client, baseURL, alice, "otherpass"); err == nil {
		t.Fatal("duplicate registration should fail")
	}

	if err := login(t, client, baseURL, alice, "wrongpass", http.StatusUnauthorized); err != nil {
		t.Fatalf("wrong-password login: %v", err)
	}

	// Without a session the profile endpoint refuses.
	if status := getStatus(t, client, baseURL+"/auth/user/me"); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 before login, got %d", status)
	}

	if err := login(t, client, baseURL, alice, "testpass123!", http.StatusOK); err != nil {
		t.Fatalf("login: %v", err)
	}

	// The jwt cookie set by login now authenticates requests.
	if status := getStatus(t, client, baseURL+"/auth/user/me"); status != http.StatusOK {
		t.Fatalf("expected 200 after login, got %d", status)
	}

	// The delete permission is granted out of band, then a fresh login picks
	// up the enlarged claim set.
	if err := grantDeletePermission(alice); err != nil {
		t.Fatalf("grant permission: %v", err)
	}
	if err := login(t, client, baseURL, alice, "testpass123!", http.StatusOK); err != nil {
		t.Fatalf("re-login: %v", err)
	}

	bobUUID, err := lookupPublicID(bob)
	if err != nil {
		t.Fatalf("lookup %s: %v", bob, err)
	}

	if err := deleteUser(t, client, baseURL, bobUUID); err != nil {
		t.Fatalf("delete %s: %v", bob, err)
	}

	// A soft-deleted account can no longer log in, and its username is
	// available for a fresh registration.
	other := newCookieClient(t)
	if err := login(t, other, baseURL, bob, "testpass123!", http.StatusNotFound); err != nil {
		t.Fatalf("login after delete: %v", err)
	}
	if err := registerUser(t, other, baseURL, bob, "newpass456!"); err != nil {
		t.Fatalf("re-register %s: %v", bob, err)
	}
	if err := login(t, other, baseURL, bob, "newpass456!", http.StatusOK); err != nil {
		t.Fatalf("login after re-register: %v", err)
	}
}

func newCookieClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func registerUser(t *testing.T, client *http.Client, baseURL, username, password string) error {
	t.Helper()

	form := url.Values{
		"username": {username},
		"email":    {username + "@example.com"},
		"password": {password},
	}
	resp, err := client.PostForm(baseURL+"/auth/user", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func login(t *testing.T, client *http.Client, baseURL, username, password string, wantStatus int) error {
	t.Helper()

	form := url.Values{"username": {username}, "password": {password}}
	resp, err := client.PostForm(baseURL+"/auth/login", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login status %d (want %d): %s", resp.StatusCode, wantStatus, strings.TrimSpace(string(msg)))
	}
	return nil
}

func getStatus(t *testing.T, client *http.Client, url string) int {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func deleteUser(t *testing.T, client *http.Client, baseURL, publicID string) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, baseURL+"/auth/user/"+publicID, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// grantDeletePermission wires username into a moderators group holding the
// delete permission, straight through SQL.
func grantDeletePermission(username string) error {
	conn, err := openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var userID int
	if err := conn.QueryRowContext(ctx,
		"SELECT id FROM users WHERE username = $1 AND NOT is_deleted", username).Scan(&userID); err != nil {
		return err
	}

	var groupID int
	if err := conn.QueryRowContext(ctx, `
		INSERT INTO groups (name, created_at) VALUES ('moderators', NOW())
		ON CONFLICT DO NOTHING RETURNING id`).Scan(&groupID); err != nil {
		if err != sql.ErrNoRows {
			return err
		}
		if err := conn.QueryRowContext(ctx,
			"SELECT id FROM groups WHERE name = 'moderators' AND NOT is_deleted").Scan(&groupID); err != nil {
			return err
		}
	}

	var permID int
	if err := conn.QueryRowContext(ctx, `
		INSERT INTO permissions (permission, created_at) VALUES ('can delete users', NOW())
		ON CONFLICT DO NOTHING RETURNING id`).Scan(&permID); err != nil {
		if err != sql.ErrNoRows {
			return err
		}
		if err := conn.QueryRowContext(ctx,
			"SELECT id FROM permissions WHERE permission = 'can delete users' AND NOT is_deleted").Scan(&permID); err != nil {
			return err
		}
	}

	if _, err := conn.ExecContext(ctx, `
		INSERT INTO group_permissions (group_id, permission_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, groupID, permID); err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, groupID)
	return err
}

func lookupPublicID(username string) (string, error) {
	conn, err := openDB()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var publicID string
	err = conn.QueryRowContext(ctx,
		"SELECT public_id FROM users WHERE username = $1 AND NOT is_deleted", username).Scan(&publicID)
	return publicID, err
}

func openDB() (*sql.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return sql.Open("postgres", db.URL(cfg))
}

func waitForPostgres(ctx context.Context) error {
	conn, err := openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, db.URL(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer() (*server.Server, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "identityd")
	_ = os.Setenv("DB_PASSWORD", "identityd")
	_ = os.Setenv("DB_NAME", "identityd")
	_ = os.Setenv("DB_USE_SSL", "false")
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
