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
// Package config resolves weft's configuration and data directories.
package config

import (
	"os"
	"path/filepath"
)

// EnvDataDir overrides the default data directory when set.
const EnvDataDir = "WEFT_DATA_DIR"

// DataDir returns the weft data directory, creating it if needed.
// Resolution order: $WEFT_DATA_DIR, then ~/.weft.
func DataDir() string {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		// Last resort: relative directory in CWD
		_ = os.MkdirAll(".weft", 0o755)
		return ".weft"
	}

	dir := filepath.Join(home, ".weft")
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// DatabasePath returns the path of the durable SQLite store.
func DatabasePath() string {
	return filepath.Join(DataDir(), "weft.db")
}

// PersonalSkillsDir returns the per-user skills directory (~/.weft/skills).
// Skills found here override project-level skills with the same name.
func PersonalSkillsDir() string {
	return filepath.Join(DataDir(), "skills")
}

// ProjectSkillsDir returns the project-level skills directory (./.weft/skills).
func ProjectSkillsDir() string {
	return filepath.Join(".weft", "skills")
}
