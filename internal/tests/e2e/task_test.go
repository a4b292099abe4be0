//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/server"
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

func TestTaskLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("user_%d", time.Now().UnixNano())
	password := "testpass123!"

	token, err := registerUser(t, baseURL, username, password)
	if err != nil {
		t.Fatalf("register user: %v", err)
	}

	category, err := createCategory(t, baseURL, token, "Work")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if category.ID == 0 {
		t.Fatalf("expected category ID to be set")
	}

	dueDate := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	task, err := createTask(t, baseURL, token, map[string]any{
		"title":       "Write quarterly report",
		"description": "Numbers for Q1",
		"priority":    "high",
		"due_date":    dueDate,
		"category_id": category.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != "pending" {
		t.Fatalf("unexpected task status: %q", task.Status)
	}

	listed, err := listTasks(t, baseURL, token, "?search=quarterly")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if listed.Total != 1 {
		t.Fatalf("expected 1 task in search results, got %d", listed.Total)
	}

	completed, err := patchTask(t, baseURL, token, task.ID, map[string]any{"status": "completed"})
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if completed.Status != "completed" {
		t.Fatalf("unexpected status after completion: %q", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}

	reopened, err := markIncomplete(t, baseURL, token, task.ID)
	if err != nil {
		t.Fatalf("mark incomplete: %v", err)
	}
	if reopened.Status != "pending" {
		t.Fatalf("unexpected status after reopening: %q", reopened.Status)
	}
	if reopened.CompletedAt != nil {
		t.Fatalf("expected completed_at to be cleared")
	}

	if err := deleteTask(t, baseURL, token, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	if err := expectTaskNotFound(t, baseURL, token, task.ID); err != nil {
		t.Fatalf("expected deleted task to be missing: %v", err)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	password := "testpass123!"

	aliceToken, err := registerUser(t, baseURL, fmt.Sprintf("alice_%d", time.Now().UnixNano()), password)
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bobToken, err := registerUser(t, baseURL, fmt.Sprintf("bob_%d", time.Now().UnixNano()), password)
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	task, err := createTask(t, baseURL, aliceToken, map[string]any{"title": "Alice's secret task"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := expectTaskNotFound(t, baseURL, bobToken, task.ID); err != nil {
		t.Fatalf("expected foreign task to be hidden: %v", err)
	}
}

type taskResponse struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	CompletedAt *string `json:"completed_at"`
}

type taskEnvelope struct {
	Message string       `json:"message"`
	Task    taskResponse `json:"task"`
}

type taskListResponse struct {
	Items []taskResponse `json:"items"`
	Total int            `json:"total"`
}

type categoryResponse struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type registerResponse struct {
	Token string `json:"token"`
}

func registerUser(t *testing.T, baseURL, username, password string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"username":  username,
		"email":     fmt.Sprintf("%s@example.com", username),
		"password":  password,
		"password2": password,
	}
	resp, err := doRequest(http.MethodPost, baseURL+"/auth/register", "", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in register response")
	}
	return parsed.Token, nil
}

func createCategory(t *testing.T, baseURL, token, name string) (categoryResponse, error) {
	t.Helper()

	resp, err := doRequest(http.MethodPost, baseURL+"/categories", token, map[string]string{"name": name})
	if err != nil {
		return categoryResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return categoryResponse{}, fmt.Errorf("create category status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed categoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return categoryResponse{}, err
	}
	return parsed, nil
}

func createTask(t *testing.T, baseURL, token string, payload map[string]any) (taskResponse, error) {
	t.Helper()

	resp, err := doRequest(http.MethodPost, baseURL+"/tasks", token, payload)
	if err != nil {
		return taskResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return taskResponse{}, fmt.Errorf("create task status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return taskResponse{}, err
	}
	return parsed.Task, nil
}

func listTasks(t *testing.T, baseURL, token, query string) (taskListResponse, error) {
	t.Helper()

	resp, err := doRequest(http.MethodGet, baseURL+"/tasks"+query, token, nil)
	if err != nil {
		return taskListResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return taskListResponse{}, fmt.Errorf("list tasks status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed taskListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return taskListResponse{}, err
	}
	return parsed, nil
}

func patchTask(t *testing.T, baseURL, token string, id int, payload map[string]any) (taskResponse, error) {
	t.Helper()

	resp, err := doRequest(http.MethodPatch, fmt.Sprintf("%s/tasks/%d", baseURL, id), token, payload)
	if err != nil {
		return taskResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return taskResponse{}, fmt.Errorf("patch task status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return taskResponse{}, err
	}
	return parsed, nil
}

func markIncomplete(t *testing.T, baseURL, token string, id int) (taskResponse, error) {
	t.Helper()

	resp, err := doRequest(http.MethodPatch, fmt.Sprintf("%s/tasks/%d/incomplete", baseURL, id), token, nil)
	if err != nil {
		return taskResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return taskResponse{}, fmt.Errorf("mark incomplete status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return taskResponse{}, err
	}
	return parsed.Task, nil
}

func deleteTask(t *testing.T, baseURL, token string, id int) error {
	t.Helper()

	resp, err := doRequest(http.MethodDelete, fmt.Sprintf("%s/tasks/%d", baseURL, id), token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete task status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func expectTaskNotFound(t *testing.T, baseURL, token string, id int) error {
	t.Helper()

	resp, err := doRequest(http.MethodGet, fmt.Sprintf("%s/tasks/%d", baseURL, id), token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("expected 404, got %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func doRequest(method, url, token string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
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
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
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

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "tasktrack")
	_ = os.Setenv("DB_PASSWORD", "tasktrack")
	_ = os.Setenv("DB_NAME", "tasktrack")
	_ = os.Setenv("DB_USE_SSL", "false")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
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
