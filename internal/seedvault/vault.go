// Package seedvault keeps the node's server seed in the OS keychain, with a
// JSON file fallback for hosts that have no keyring (containers, CI).
package seedvault

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	DefaultService = "digiwin-node"
	keyServerSeed  = "server-seed"
	seedBytes      = 32
)

// ErrNotFound is returned when no seed is stored under a name.
var ErrNotFound = keyring.ErrNotFound

// Vault wraps the OS keychain with an optional file fallback.
type Vault struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// New creates a vault. An empty fallbackPath disables the file fallback.
func New(serviceName, fallbackPath string) *Vault {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = DefaultService
	}
	return &Vault{
		service:      serviceName,
		fallbackPath: fallbackPath,
	}
}

// DefaultFallbackPath is seeds.json under the user config directory.
func DefaultFallbackPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "digiwin", "seeds.json")
}

func (v *Vault) key(network string) string {
	return fmt.Sprintf("%s/%s", network, keyServerSeed)
}

// ServerSeed returns the stored seed for network.
func (v *Vault) ServerSeed(network string) (string, error) {
	return v.getSecret(network)
}

// SetServerSeed stores seed for network.
func (v *Vault) SetServerSeed(network, seed string) error {
	if strings.TrimSpace(seed) == "" {
		return fmt.Errorf("seedvault: seed is required")
	}
	return v.setSecret(network, seed)
}

// LoadOrCreate returns the stored seed for network, generating and storing
// a random one the first time. created reports whether a new seed was made.
func (v *Vault) LoadOrCreate(network string) (seed string, created bool, err error) {
	seed, err = v.getSecret(network)
	if err == nil {
		return seed, false, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return "", false, err
	}

	buf := make([]byte, seedBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", false, fmt.Errorf("seedvault: generate seed: %w", err)
	}
	seed = hex.EncodeToString(buf)
	if err := v.SetServerSeed(network, seed); err != nil {
		return "", false, err
	}
	return seed, true, nil
}

// Delete removes the seed for network from the keychain and the fallback.
func (v *Vault) Delete(network string) error {
	err := keyring.Delete(v.service, v.key(network))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		// Try fallback cleanup even if keyring delete failed.
		_ = v.deleteFallback(network)
		return fmt.Errorf("seedvault: keyring delete: %w", err)
	}
	return v.deleteFallback(network)
}

func (v *Vault) setSecret(network, value string) error {
	network = strings.TrimSpace(network)
	if network == "" {
		return fmt.Errorf("seedvault: network is required")
	}

	if err := keyring.Set(v.service, v.key(network), value); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("seedvault: keyring set: %w", err)
	}

	return v.setFallback(network, value)
}

func (v *Vault) getSecret(network string) (string, error) {
	network = strings.TrimSpace(network)
	if network == "" {
		return "", fmt.Errorf("seedvault: network is required")
	}

	val, err := keyring.Get(v.service, v.key(network))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("seedvault: keyring get: %w", err)
	}

	fallback, ferr := v.getFallback(network)
	if ferr == nil {
		return fallback, nil
	}

	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
		return "", keyring.ErrNotFound
	}
	return "", ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

// fallbackSeeds maps network to seed
type fallbackSeeds map[string]string

func (v *Vault) setFallback(network, value string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return fmt.Errorf("seedvault: keyring unavailable and no fallback path configured")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[network] = value
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) getFallback(network string) (string, error) {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return "", fmt.Errorf("seedvault: fallback path not configured")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[network]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (v *Vault) deleteFallback(network string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[network]; !ok {
		return nil
	}
	delete(data, network)
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) readFallbackUnlocked() (fallbackSeeds, error) {
	out := fallbackSeeds{}
	raw, err := os.ReadFile(v.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("seedvault: read fallback seeds: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("seedvault: decode fallback seeds: %w", err)
	}
	return out, nil
}

func (v *Vault) writeFallbackUnlocked(data fallbackSeeds) error {
	dir := filepath.Dir(v.fallbackPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("seedvault: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("seedvault: encode fallback seeds: %w", err)
	}
	if err := os.WriteFile(v.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("seedvault: write fallback seeds: %w", err)
	}
	return nil
}
