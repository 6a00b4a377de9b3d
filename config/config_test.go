package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "omp.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  loginUrl: "https://press.example.org/login"
store:
  driver: postgres
  postgresDsn: "host=localhost user=omp dbname=omp"
  redisAddr: "localhost:6379"
gateway:
  provider: manual-fee
  checkoutUrl: "https://pay.example.org/checkout"
  secret: "s3cret"
sweep:
  abandonAfter: 48h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr: got %s", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("driver: got %s", cfg.Store.Driver)
	}
	if cfg.Sweep.AbandonAfter != 48*time.Hour {
		t.Errorf("abandonAfter: got %v", cfg.Sweep.AbandonAfter)
	}
	// Unset fields keep their defaults.
	if cfg.Sweep.SweepInterval != time.Hour {
		t.Errorf("sweepInterval default: got %v", cfg.Sweep.SweepInterval)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"unknown driver": `
store:
  driver: cassandra
`,
		"sqlite without path": `
store:
  driver: sqlite
`,
		"gateway without secret": `
gateway:
  provider: manual-fee
  checkoutUrl: "https://pay.example.org"
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
