package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("WEBMIXER_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("WEBMIXER_CONFIG", "/etc/webmixer/config.yaml")
	if got := getConfigPath(); got != "/etc/webmixer/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("desk: [not: valid"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WEBMIXER_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want config load failure", err)
	}
}

func TestRun_FailsValidation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("desk:\n  host: \"\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WEBMIXER_CONFIG", configPath)

	if err := run(context.Background()); err == nil {
		t.Error("run() should fail without a desk host")
	}
}

// freePort asks the kernel for an unused port on 127.0.0.1.
func freePort(t *testing.T, network string) int {
	t.Helper()
	switch network {
	case "udp":
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()
		return conn.LocalAddr().(*net.UDPAddr).Port
	default:
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer l.Close()
		return l.Addr().(*net.TCPAddr).Port
	}
}

func TestRun_StartsAndStops(t *testing.T) {
	dir := t.TempDir()
	httpPort := freePort(t, "tcp")
	oscPort := freePort(t, "udp")
	deskPort := freePort(t, "udp")

	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
server:
  host: 127.0.0.1
  port: %d
osc:
  host: 127.0.0.1
  port: %d
desk:
  host: 127.0.0.1
  port: %d
logging:
  level: error
database:
  enabled: true
  path: %s
`, httpPort, oscPort, deskPort, filepath.Join(dir, "data", "webmixer.db"))
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WEBMIXER_CONFIG", configPath)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", httpPort)
	var body string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url) //nolint:gosec,noctx // Test against local server
		if err == nil {
			data, _ := io.ReadAll(resp.Body) //nolint:errcheck // Checked via content
			resp.Body.Close()
			body = string(data)
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !strings.Contains(body, "waiting_for_desk") {
		t.Errorf("health body = %q, want waiting_for_desk", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	if _, err := os.Stat(filepath.Join(dir, "data", "webmixer.db")); err != nil {
		t.Errorf("history database not created: %v", err)
	}
}
