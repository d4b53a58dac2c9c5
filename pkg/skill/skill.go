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

// Package skill loads user-authored instruction templates from SKILL.md
// files and expands them into prompts. A skill never executes anything
// itself; its processed instructions are fed back into the conversation
// as a new user message.
package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the per-skill definition file inside its directory.
const FileName = "SKILL.md"

// Skill is one loaded instruction template.
type Skill struct {
	Name        string
	Description string

	// UserInvocable skills appear as slash commands; ModelInvocable
	// skills appear in the tool catalog as skill_<name>.
	UserInvocable  bool
	ModelInvocable bool

	// AllowedTools is a hint for the caller, never enforced here.
	AllowedTools []string

	// Context is extra system-prompt text the engine may prepend.
	Context string

	// Instructions is the raw markdown body before substitution.
	Instructions string

	// Path is the SKILL.md the skill was loaded from.
	Path string

	// Personal marks skills from the per-user directory, which shadow
	// project skills of the same name.
	Personal bool
}

// frontmatter mirrors the YAML header of a SKILL.md.
type frontmatter struct {
	Name                   string      `yaml:"name"`
	Description            string      `yaml:"description"`
	UserInvocable          *bool       `yaml:"user-invocable"`
	DisableModelInvocation bool        `yaml:"disable-model-invocation"`
	AllowedTools           interface{} `yaml:"allowed-tools"`
	Context                string      `yaml:"context"`
}

// Parse reads one SKILL.md. Missing frontmatter is legal; the name then
// defaults to the skill's directory name.
func Parse(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill %s: %w", path, err)
	}

	body := string(data)
	var fm frontmatter

	if rest, ok := strings.CutPrefix(body, "---\n"); ok {
		header, after, found := strings.Cut(rest, "\n---")
		if !found {
			return nil, fmt.Errorf("parse skill %s: unterminated frontmatter", path)
		}
		if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
			return nil, fmt.Errorf("parse skill %s: %w", path, err)
		}
		body = strings.TrimPrefix(after, "\n")
	}

	s := &Skill{
		Name:           fm.Name,
		Description:    fm.Description,
		UserInvocable:  true,
		ModelInvocable: !fm.DisableModelInvocation,
		AllowedTools:   parseAllowedTools(fm.AllowedTools),
		Context:        fm.Context,
		Instructions:   strings.TrimLeft(body, "\n"),
		Path:           path,
	}
	if fm.UserInvocable != nil {
		s.UserInvocable = *fm.UserInvocable
	}
	if s.Name == "" {
		s.Name = filepath.Base(filepath.Dir(path))
	}
	return s, nil
}

// parseAllowedTools accepts both a YAML list and a comma-separated string.
func parseAllowedTools(raw interface{}) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		var tools []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tools = append(tools, part)
			}
		}
		return tools
	case []interface{}:
		var tools []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					tools = append(tools, s)
				}
			}
		}
		return tools
	}
	return nil
}
