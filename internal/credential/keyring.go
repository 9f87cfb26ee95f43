// Package credential resolves secrets kept in the OS keyring. Config values
// of the form "keyring:<name>" are replaced by the stored secret at startup.
package credential

import (
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "courier"

// Prefix marks a config value as a keyring reference.
const Prefix = "keyring:"

// open returns the keyring to use; tests replace it with an in-memory ring.
var open = openKeyring

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/courier/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("courier-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("credential: open keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("credential: get %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key, value string) error {
	ring, err := open()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: "courier " + key}); err != nil {
		return fmt.Errorf("credential: set %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := open()
	if err != nil {
		return err
	}
	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("credential: delete %q: %w", key, err)
	}
	return nil
}

// IsRef reports whether value is a keyring reference.
func IsRef(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Resolve returns value unchanged unless it is a keyring reference, in which
// case the referenced secret is looked up.
func Resolve(value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	key := strings.TrimPrefix(value, Prefix)
	if key == "" {
		return "", fmt.Errorf("credential: empty keyring reference")
	}
	return Get(key)
}

// ResolveAll resolves every pointed-to string in place and reports the first
// failure.
func ResolveAll(values ...*string) error {
	for _, v := range values {
		if v == nil {
			continue
		}
		resolved, err := Resolve(*v)
		if err != nil {
			return err
		}
		*v = resolved
	}
	return nil
}

// UseKeyring makes the package use ring instead of the system keyring until
// the returned func is called.
func UseKeyring(ring keyring.Keyring) (restore func()) {
	prev := open
	open = func() (keyring.Keyring, error) { return ring, nil }
	return func() { open = prev }
}
