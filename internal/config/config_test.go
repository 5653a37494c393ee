package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("creates defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sub", FileName)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if *cfg != Default() {
			t.Errorf("Load() = %+v, want defaults", *cfg)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		again, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if *again != *cfg {
			t.Errorf("reload = %+v, want %+v", *again, *cfg)
		}
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		data := "max_per_page: 25\nrate_limits:\n  write_per_min: 5\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		want := Default()
		want.MaxPerPage = 25
		want.RateLimits.WritePerMin = 5
		if *cfg != want {
			t.Errorf("Load() = %+v, want %+v", *cfg, want)
		}
	})

	invalid := []struct {
		name string
		data string
		want string
	}{
		{"negative page cap", "max_per_page: -1\n", "max_per_page"},
		{"negative body", "max_request_body_bytes: -1\n", "max_request_body_bytes"},
		{"short secret", "jwt_secret: short\n", "jwt_secret"},
		{"negative rate", "rate_limits:\n  read_per_min: -3\n", "read_per_min"},
		{"bad yaml", "max_per_page: [\n", "failed to parse"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSchema(t *testing.T) {
	b, err := Schema()
	if err != nil {
		t.Fatal(err)
	}
	var s struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(b, &s); err != nil {
		t.Fatalf("invalid schema JSON: %v", err)
	}
	if s.Title != FileName {
		t.Errorf("title = %q", s.Title)
	}
	for _, key := range []string{"max_per_page", "max_request_body_bytes", "jwt_secret", "rate_limits"} {
		if _, ok := s.Properties[key]; !ok {
			t.Errorf("schema is missing %q: %s", key, b)
		}
	}
}
