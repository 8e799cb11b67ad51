package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vickym250/jnschool/internal/config"
	"github.com/vickym250/jnschool/internal/core"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"firestore without project", Config{Type: FirestoreBackend}, true},
		{"mongo without database", Config{Type: MongoBackend, MongoURI: "mongodb://localhost"}, true},
		{"mongo", Config{Type: MongoBackend, MongoURI: "mongodb://localhost", MongoDatabase: "jnschool"}, false},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected an error for a nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "csv"}); err == nil {
		t.Error("expected an error for an unknown backend")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "mongo", MongoURI: "mongodb://db", MongoDatabase: "school"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != MongoBackend || cfg.MongoURI != "mongodb://db" || cfg.MongoDatabase != "school" {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	mem, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
	if err != nil {
		t.Fatal(err)
	}
	if err := mem.Ready(ctx); err != nil || mem.Close() != nil {
		t.Errorf("memory backend: ready %v", err)
	}

	path := filepath.Join(t.TempDir(), "ledger.db")
	res, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	defer res.Close()
	if err := res.Ready(ctx); err != nil {
		t.Errorf("Ready() = %v", err)
	}
	n, err := res.Store.Next(ctx, core.RegistrationCounterKey, core.RegistrationSeed-1)
	if err != nil || n != core.RegistrationSeed {
		t.Errorf("Next() = %d, %v", n, err)
	}

	if _, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend}); err == nil {
		t.Error("expected validation error")
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	if len(got) != 4 || got[0] != "memory" || got[3] != "mongo" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}
