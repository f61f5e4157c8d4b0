package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("SYNC_GROUP_DELAY", "2s")
	t.Setenv("PROJECTION_MONTHLY_RENT", "1500000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache.TTL = %v, want %v", cfg.Cache.TTL, 30*time.Second)
	}
	if cfg.Sync.GroupDelay != 2*time.Second {
		t.Errorf("Sync.GroupDelay = %v, want %v", cfg.Sync.GroupDelay, 2*time.Second)
	}
	if cfg.Projection.MonthlyRent != 1_500_000 {
		t.Errorf("Projection.MonthlyRent = %d, want %d", cfg.Projection.MonthlyRent, 1_500_000)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Sync.ChunkSize != 100 {
		t.Errorf("Sync.ChunkSize = %d, want 100", cfg.Sync.ChunkSize)
	}
	if cfg.Projection.MonthlyMaintenance != 200_000 {
		t.Errorf("Projection.MonthlyMaintenance = %d, want 200000", cfg.Projection.MonthlyMaintenance)
	}
	if cfg.Projection.CleaningCost != 100_000 {
		t.Errorf("Projection.CleaningCost = %d, want 100000", cfg.Projection.CleaningCost)
	}
	if cfg.Projection.CommissionRate != 0.033 {
		t.Errorf("Projection.CommissionRate = %v, want 0.033", cfg.Projection.CommissionRate)
	}
	if cfg.Cluster.RadiusMeters != 30 {
		t.Errorf("Cluster.RadiusMeters = %v, want 30", cfg.Cluster.RadiusMeters)
	}
}

func TestLoadConfig_ChunkSizeCapped(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "above store limit", value: "500", want: 100},
		{name: "zero", value: "0", want: 100},
		{name: "within limit", value: "50", want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SYNC_CHUNK_SIZE", tt.value)

			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.Sync.ChunkSize != tt.want {
				t.Errorf("Sync.ChunkSize = %d, want %d", cfg.Sync.ChunkSize, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns integer when valid",
			key:          "TEST_INT",
			defaultValue: 100,
			envValue:     "200",
			want:         200,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_INT_INVALID",
			defaultValue: 100,
			envValue:     "invalid",
			want:         100,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOTSET",
			defaultValue: 100,
			envValue:     "",
			want:         100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.05")
	t.Setenv("TEST_FLOAT_INVALID", "five percent")

	if got := getEnvAsFloat("TEST_FLOAT", 0.033); got != 0.05 {
		t.Errorf("getEnvAsFloat() = %v, want 0.05", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT_INVALID", 0.033); got != 0.033 {
		t.Errorf("getEnvAsFloat() = %v, want default 0.033", got)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "false")

	if got := getEnvAsBool("TEST_BOOL", true); got {
		t.Error("getEnvAsBool() = true, want false")
	}
	if got := getEnvAsBool("TEST_BOOL_NOTSET", true); !got {
		t.Error("getEnvAsBool() = false, want default true")
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "250ms",
			want:         250 * time.Millisecond,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostgresConfig_URL(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db",
		Port:     "5432",
		Database: "rental_insight",
		User:     "rental",
		Password: "secret",
	}

	want := "postgres://rental:secret@db:5432/rental_insight?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}
}
