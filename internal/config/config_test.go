package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("defaults should load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.MatchRadiusKm != 5 || cfg.OTPLength != 6 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RunMigrations {
		t.Fatal("migrations must be opt-in")
	}
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("HTTP_READ_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("MATCH_RADIUS_KM", "3.5")
	t.Setenv("BROADCAST_WORKERS", "8")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MIGRATE", "TRUE")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.ReadTimeout != 2*time.Second {
		t.Fatalf("http settings not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers %v", cfg.KafkaBrokers)
	}
	if cfg.MatchRadiusKm != 3.5 || cfg.BroadcastWorkers != 8 {
		t.Fatalf("matching settings not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" || !cfg.RunMigrations {
		t.Fatalf("log/migrate not applied: %+v", cfg)
	}
}

func TestLoadServerConfigAggregatesErrors(t *testing.T) {
	t.Setenv("HTTP_WRITE_TIMEOUT", "soon")
	t.Setenv("OTP_LENGTH", "2")
	t.Setenv("MATCH_RADIUS_KM", "-1")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("expected joined error, got %T", err)
	}
	if n := countLeaves(joined.Unwrap()); n != 3 {
		t.Fatalf("expected 3 problems, got %d: %v", n, err)
	}
}

func countLeaves(errs []error) int {
	n := 0
	for _, e := range errs {
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			n += countLeaves(j.Unwrap())
			continue
		}
		n++
	}
	return n
}

func TestLoadConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_LOCATION_TOPIC", "locs")
	t.Setenv("REDIS_ADDR", "redis:6379")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.KafkaTopic != "locs" || cfg.RedisAddr != "redis:6379" || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Fatalf("unexpected consumer config %+v", cfg)
	}
}
