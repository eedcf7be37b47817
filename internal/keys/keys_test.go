package keys

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStore(t *testing.T) {
	t.Setenv("MINDSKETCH_CONFIG_DIR", t.TempDir())

	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if store.Path() == "" {
		t.Error("Store.Path() should not be empty")
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewStoreWithDir(tmpDir)

	if err := store.Set(ProviderGemini, "AIza-test-key-12345"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Credentials must not be world readable.
	info, err := os.Stat(filepath.Join(tmpDir, "keys.json"))
	if err != nil {
		t.Fatalf("keys.json not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("keys.json permissions = %v, want 0600", info.Mode().Perm())
	}

	key, err := store.Get(ProviderGemini)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if key != "AIza-test-key-12345" {
		t.Errorf("Get() = %v, want AIza-test-key-12345", key)
	}

	// Missing key is empty, not an error.
	key, err = store.Get("relay")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if key != "" {
		t.Errorf("Get(non-existent) = %v, want empty string", key)
	}

	exists, err := store.Exists(ProviderGemini)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists(gemini) = false, want true")
	}

	if err := store.Delete(ProviderGemini); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if key, _ := store.Get(ProviderGemini); key != "" {
		t.Errorf("Get() after Delete() = %v, want empty string", key)
	}

	if err := store.Delete("relay"); err == nil {
		t.Error("Delete(non-existent) should return error")
	}
}

func TestStore_ListSorted(t *testing.T) {
	store := NewStoreWithDir(t.TempDir())

	store.Set("relay", "r-key")
	store.Set(ProviderGemini, "g-key")

	providers, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(providers) != 2 || providers[0] != "gemini" || providers[1] != "relay" {
		t.Errorf("List() = %v, want [gemini relay]", providers)
	}
}

func TestStore_EmptyDir(t *testing.T) {
	store := NewStoreWithDir(t.TempDir())

	key, err := store.Get(ProviderGemini)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if key != "" {
		t.Errorf("Get() from non-existent file = %v, want empty string", key)
	}

	providers, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(providers) != 0 {
		t.Errorf("List() from non-existent file = %v, want empty slice", providers)
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"AIza1234567890abcdef", "AIza************cdef"},
		{"short", "*****"},
		{"12345678", "********"},
		{"123456789", "1234*6789"},
		{"", ""},
	}

	for _, tt := range tests {
		got := MaskKey(tt.key)
		if got != tt.want {
			t.Errorf("MaskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestGetAPIKey_Priority(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MINDSKETCH_CONFIG_DIR", tmpDir)
	t.Setenv(EnvAPIKey, "env-key")

	store := NewStoreWithDir(tmpDir)
	if err := store.Set(ProviderGemini, "stored-key"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Flag beats everything.
	key, source, err := GetAPIKey("flag-key")
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key != "flag-key" || source != "command-line flag" {
		t.Errorf("GetAPIKey() = %q from %q, want flag-key", key, source)
	}

	// Stored key beats the environment.
	key, source, err = GetAPIKey("")
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key != "stored-key" || !strings.Contains(source, "stored key") {
		t.Errorf("GetAPIKey() = %q from %q, want stored-key", key, source)
	}

	// Environment is the last fallback.
	if err := store.Delete(ProviderGemini); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	key, source, err = GetAPIKey("")
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key != "env-key" || !strings.Contains(source, EnvAPIKey) {
		t.Errorf("GetAPIKey() = %q from %q, want env-key", key, source)
	}
}

func TestGetAPIKey_MissingEverywhere(t *testing.T) {
	t.Setenv("MINDSKETCH_CONFIG_DIR", t.TempDir())
	t.Setenv(EnvAPIKey, "")

	_, _, err := GetAPIKey("")
	if err == nil {
		t.Fatal("GetAPIKey() error = nil, want guidance")
	}
	if !strings.Contains(err.Error(), "keys set") {
		t.Errorf("error %q does not mention the recovery command", err)
	}
}
