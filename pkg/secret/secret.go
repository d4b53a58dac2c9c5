// Copyright 2026 Weft Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package secret obfuscates credentials persisted in the weft store.
//
// The default MachineStore XORs the plaintext with a SHA-256 stream derived
// from hostname, machine id and username, then base64-encodes the result.
// This prevents casual disclosure of passwords in the on-disk database; it
// is NOT a cryptographic guarantee. Deployments that need one should use
// KeyringStore, which delegates to the OS secret service behind the same
// interface.
package secret

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"
)

// Store encrypts and decrypts credential strings.
type Store interface {
	// Encrypt returns an opaque representation of plain.
	Encrypt(plain string) (string, error)

	// Decrypt reverses Encrypt. A corrupt or foreign opaque value returns
	// the empty string rather than an error, so a moved database never
	// crashes the engine; the subsequent connection attempt fails cleanly.
	Decrypt(opaque string) string
}

// prefix versions the on-disk format so a future scheme can coexist.
const prefix = "wft1:"

// MachineStore is the default Store implementation.
type MachineStore struct {
	key     []byte
	keyOnce sync.Once
}

// NewMachineStore creates a store keyed on the local machine identity.
func NewMachineStore() *MachineStore {
	return &MachineStore{}
}

func (s *MachineStore) machineKey() []byte {
	s.keyOnce.Do(func() {
		hostname, _ := os.Hostname()

		machineID := readMachineID()

		username := ""
		if u, err := user.Current(); err == nil {
			username = u.Username
		}

		sum := sha256.Sum256([]byte(hostname + "\x00" + machineID + "\x00" + username))
		s.key = sum[:]
	})
	return s.key
}

func readMachineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

// Encrypt implements Store.
func (s *MachineStore) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	data := xorStream([]byte(plain), s.machineKey())
	return prefix + base64.StdEncoding.EncodeToString(data), nil
}

// Decrypt implements Store.
func (s *MachineStore) Decrypt(opaque string) string {
	if opaque == "" {
		return ""
	}
	if !strings.HasPrefix(opaque, prefix) {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(opaque, prefix))
	if err != nil {
		return ""
	}
	return string(xorStream(data, s.machineKey()))
}

// xorStream XORs data with a repeating key stream. Symmetric: applying it
// twice with the same key restores the input.
func xorStream(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// FromConfig returns the Store selected by the secret backend name.
func FromConfig(backend string) (Store, error) {
	switch backend {
	case "", "machine":
		return NewMachineStore(), nil
	case "keyring":
		return NewKeyringStore("weft"), nil
	default:
		return nil, fmt.Errorf("unknown secret backend: %s", backend)
	}
}
