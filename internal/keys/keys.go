// Package keys stores reasoning-service credentials in the user's config
// directory. Keys are provider-scoped so a relay deployment and a direct
// Gemini key can coexist.
package keys

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ProviderGemini is the key slot for the direct Gemini client.
const ProviderGemini = "gemini"

// EnvAPIKey is the environment fallback for the Gemini key.
const EnvAPIKey = "GEMINI_API_KEY"

// Store handles credential storage and retrieval.
type Store struct {
	configDir string
}

// KeyEntry represents a stored credential.
type KeyEntry struct {
	Key string `json:"key"`
}

// Keys represents the keys.json structure.
type Keys map[string]KeyEntry

func NewStore() (*Store, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, err
	}
	return &Store{configDir: configDir}, nil
}

// NewStoreWithDir binds the store to an explicit directory, for tests.
func NewStoreWithDir(dir string) *Store {
	return &Store{configDir: dir}
}

// getConfigDir returns the platform-specific config directory.
func getConfigDir() (string, error) {
	// Allow override for testing
	if testDir := os.Getenv("MINDSKETCH_CONFIG_DIR"); testDir != "" {
		return testDir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "mindsketch"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "mindsketch"), nil
	default: // linux and others
		// Follow XDG Base Directory Specification
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "mindsketch"), nil
	}
}

// Path returns the path to the keys.json file.
func (s *Store) Path() string {
	return filepath.Join(s.configDir, "keys.json")
}

func (s *Store) load() (Keys, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(Keys), nil
		}
		return nil, err
	}

	var keys Keys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse keys.json: %w", err)
	}
	return keys, nil
}

func (s *Store) save(keys Keys) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}

	// Owner read/write only; the file holds credentials.
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write keys.json: %w", err)
	}
	return nil
}

// Set stores a key for the given provider.
func (s *Store) Set(provider, key string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}

	keys[provider] = KeyEntry{Key: key}
	return s.save(keys)
}

// Get retrieves a key for the given provider. A missing key is not an
// error; it returns the empty string.
func (s *Store) Get(provider string) (string, error) {
	keys, err := s.load()
	if err != nil {
		return "", err
	}

	entry, ok := keys[provider]
	if !ok {
		return "", nil
	}
	return entry.Key, nil
}

// Delete removes a key for the given provider.
func (s *Store) Delete(provider string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := keys[provider]; !ok {
		return fmt.Errorf("no key found for %s", provider)
	}

	delete(keys, provider)
	return s.save(keys)
}

// List returns all stored provider names, sorted.
func (s *Store) List() ([]string, error) {
	keys, err := s.load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(keys))
	for provider := range keys {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	return providers, nil
}

// Exists checks if a key exists for the given provider.
func (s *Store) Exists(provider string) (bool, error) {
	keys, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := keys[provider]
	return ok, nil
}

// MaskKey returns a masked version of the key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// GetAPIKey retrieves the Gemini key using the priority order:
// 1. Explicit key passed as argument (if non-empty)
// 2. Stored key in keys.json
// 3. GEMINI_API_KEY environment variable
func GetAPIKey(explicitKey string) (string, string, error) {
	if explicitKey != "" {
		return explicitKey, "command-line flag", nil
	}

	store, err := NewStore()
	if err == nil {
		storedKey, err := store.Get(ProviderGemini)
		if err == nil && storedKey != "" {
			return storedKey, fmt.Sprintf("stored key (%s)", store.Path()), nil
		}
	}

	if envKey := os.Getenv(EnvAPIKey); envKey != "" {
		return envKey, fmt.Sprintf("environment variable (%s)", EnvAPIKey), nil
	}

	return "", "", fmt.Errorf("API key required: run 'mindsketch keys set %s <key>' or set %s", ProviderGemini, EnvAPIKey)
}
