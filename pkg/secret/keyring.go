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
package secret

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringStore stores secrets in the OS secret service (Keychain, libsecret,
// Windows Credential Manager). The opaque value persisted in the weft store
// is only a lookup handle; the secret itself never touches the database.
type KeyringStore struct {
	service string
}

const keyringPrefix = "wftkr:"

// NewKeyringStore creates a keyring-backed store under the given service name.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

// Encrypt implements Store by storing the secret under a content-derived
// handle and returning that handle.
func (s *KeyringStore) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	sum := sha256.Sum256([]byte(plain))
	handle := hex.EncodeToString(sum[:16])
	if err := keyring.Set(s.service, handle, plain); err != nil {
		return "", err
	}
	return keyringPrefix + handle, nil
}

// Decrypt implements Store. Missing or foreign handles yield "".
func (s *KeyringStore) Decrypt(opaque string) string {
	if !strings.HasPrefix(opaque, keyringPrefix) {
		return ""
	}
	plain, err := keyring.Get(s.service, strings.TrimPrefix(opaque, keyringPrefix))
	if err != nil {
		return ""
	}
	return plain
}
