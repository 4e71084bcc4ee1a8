package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		expected  string
		wantPanic bool
	}{
		{
			name:      "valid string",
			key:       "TEST_STRING",
			value:     "test_value",
			expected:  "test_value",
			wantPanic: false,
		},
		{
			name:      "missing variable",
			key:       "TEST_MISSING",
			value:     "",
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.expected {
				t.Errorf("requireEnv() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestGetenvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      int
		expected int
	}{
		{name: "valid int", key: "TEST_INT", value: "42", def: 1, expected: 42},
		{name: "invalid int uses default", key: "TEST_INT_INVALID", value: "not_a_number", def: 7, expected: 7},
		{name: "missing variable uses default", key: "TEST_INT_MISSING", value: "", def: 3, expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}
			if got := getenvInt(tt.key, tt.def); got != tt.expected {
				t.Errorf("getenvInt() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "single", input: "10.0.0.0/8", expected: []string{"10.0.0.0/8"}},
		{name: "spaces and quotes", input: ` "voice.lan" , 'gpu-box:8000',,`, expected: []string{"voice.lan", "gpu-box:8000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitAndTrim(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("splitAndTrim() = %v, want %v", result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("splitAndTrim()[%d] = %v, want %v", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{
			name:     "valid duration",
			key:      "TEST_DURATION",
			value:    "5s",
			def:      1 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "invalid duration uses default",
			key:      "TEST_DURATION_INVALID",
			value:    "invalid",
			def:      10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_DURATION_MISSING",
			value:    "",
			def:      15 * time.Second,
			expected: 15 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			result := mustDuration(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      bool
		expected bool
	}{
		{name: "true value", key: "TEST_BOOL", value: "true", def: false, expected: true},
		{name: "false value", key: "TEST_BOOL_FALSE", value: "false", def: true, expected: false},
		{name: "invalid value uses default", key: "TEST_BOOL_INVALID", value: "invalid", def: true, expected: true},
		{name: "missing variable uses default", key: "TEST_BOOL_MISSING", value: "", def: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			result := mustBool(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "VOICECTL_") {
			t.Setenv(key, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q, want :8000", cfg.ListenAddr)
	}
	if cfg.StopTimeout != 10*time.Second {
		t.Errorf("StopTimeout = %v, want 10s", cfg.StopTimeout)
	}
	if !cfg.StopAllOnExit {
		t.Error("StopAllOnExit should default to true")
	}
	if cfg.HealthInterval != 30*time.Second {
		t.Errorf("HealthInterval = %v, want 30s", cfg.HealthInterval)
	}
	if cfg.ProxyTimeout != 120*time.Second {
		t.Errorf("ProxyTimeout = %v, want 120s", cfg.ProxyTimeout)
	}
	if cfg.GPUCommand != "nvidia-smi" {
		t.Errorf("GPUCommand = %q", cfg.GPUCommand)
	}
	if cfg.JournalEnabled() {
		t.Error("journal should be disabled without VOICECTL_REDIS_ADDR")
	}
	if cfg.AllowedCIDRS != nil || cfg.AllowedHosts != nil {
		t.Errorf("access lists should be empty, got %v %v", cfg.AllowedCIDRS, cfg.AllowedHosts)
	}
	if cfg.EventHistory != 200 {
		t.Errorf("EventHistory = %d, want 200", cfg.EventHistory)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOICECTL_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("VOICECTL_STOP_TIMEOUT", "2s")
	t.Setenv("VOICECTL_HEALTH_INTERVAL", "0s")
	t.Setenv("VOICECTL_ALLOWED_CIDRS", "10.0.0.0/8, 192.168.1.10")
	t.Setenv("VOICECTL_REDIS_ADDR", "localhost:6379")

	cfg := Load()

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.StopTimeout != 2*time.Second {
		t.Errorf("StopTimeout = %v", cfg.StopTimeout)
	}
	if cfg.HealthInterval != 0 {
		t.Errorf("HealthInterval = %v, want 0", cfg.HealthInterval)
	}
	if len(cfg.AllowedCIDRS) != 2 || cfg.AllowedCIDRS[1] != "192.168.1.10" {
		t.Errorf("AllowedCIDRS = %v", cfg.AllowedCIDRS)
	}
	if !cfg.JournalEnabled() {
		t.Error("journal should be enabled with VOICECTL_REDIS_ADDR")
	}
}

func TestLoadPanics(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "zero stop timeout",
			env:  map[string]string{"VOICECTL_STOP_TIMEOUT": "0s"},
		},
		{
			name: "negative health interval",
			env:  map[string]string{"VOICECTL_HEALTH_INTERVAL": "-1s"},
		},
		{
			name: "required redis password missing",
			env: map[string]string{
				"VOICECTL_REDIS_ADDR":              "localhost:6379",
				"VOICECTL_REDIS_PASSWORD_REQUIRED": "true",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("Load() should have panicked")
				}
			}()
			Load()
		})
	}
}
