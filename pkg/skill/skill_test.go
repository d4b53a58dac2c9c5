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

package skill

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, dir, name, content string) string {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	path := filepath.Join(skillDir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := writeSkill(t, dir, "tune-join", `---
name: tune-join
description: analyze a join
allowed-tools: run_explain, create_index
disable-model-invocation: true
context: You are a tuning assistant.
---

Analyze this join: $ARGUMENTS and suggest indexes.
`)

	s, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "tune-join", s.Name)
	assert.Equal(t, "analyze a join", s.Description)
	assert.True(t, s.UserInvocable)
	assert.False(t, s.ModelInvocable)
	assert.Equal(t, []string{"run_explain", "create_index"}, s.AllowedTools)
	assert.Equal(t, "You are a tuning assistant.", s.Context)
	assert.Equal(t, "Analyze this join: $ARGUMENTS and suggest indexes.\n", s.Instructions)
}

func TestParseMissingFrontmatterDefaultsNameToDir(t *testing.T) {
	dir := t.TempDir()
	path := writeSkill(t, dir, "bare", "Just instructions, no header.\n")

	s, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "bare", s.Name)
	assert.True(t, s.UserInvocable)
	assert.True(t, s.ModelInvocable)
	assert.Equal(t, "Just instructions, no header.\n", s.Instructions)
}

func TestParseAllowedToolsList(t *testing.T) {
	dir := t.TempDir()
	path := writeSkill(t, dir, "listy", `---
allowed-tools:
  - run_explain
  - list_tables
---
body
`)

	s, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"run_explain", "list_tables"}, s.AllowedTools)
}

func TestTokenizeArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`orders x line_items`, []string{"orders", "x", "line_items"}},
		{`"big table" small`, []string{"big table", "small"}},
		{`'it''s' fine`, []string{"its", "fine"}},
		{`  spaced   out  `, []string{"spaced", "out"}},
		{``, nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TokenizeArgs(tc.in), tc.in)
	}
}

func TestExecuteArgumentSubstitution(t *testing.T) {
	s := &Skill{Instructions: "all=$ARGUMENTS first=$1 second=$2 zero=$ARGUMENTS[0] missing=$9"}

	exp := Execute(context.Background(), s, `orders "line items"`, nil)
	assert.Equal(t, `all=orders "line items" first=orders second=line items zero=orders missing=`, exp.Instructions)
}

func TestExecuteVariableSubstitution(t *testing.T) {
	t.Setenv("WEFT_TEST_REGION", "eu-west")
	s := &Skill{Instructions: "db=${TARGET_DB} region=${WEFT_TEST_REGION} unknown=${NOPE_NOT_SET}"}

	exp := Execute(context.Background(), s, "", map[string]string{"TARGET_DB": "sales"})
	assert.Equal(t, "db=sales region=eu-west unknown=", exp.Instructions)
}

func TestExecuteCommandSubstitution(t *testing.T) {
	s := &Skill{Instructions: "today is !`echo monday` ok"}

	exp := Execute(context.Background(), s, "", nil)
	assert.Equal(t, "today is monday ok", exp.Instructions)
}

func TestExecuteFailedCommandExpandsEmpty(t *testing.T) {
	s := &Skill{Instructions: "out=[!`exit 3`]"}

	exp := Execute(context.Background(), s, "", nil)
	assert.Equal(t, "out=[]", exp.Instructions)
}

func TestExecuteCarriesHints(t *testing.T) {
	s := &Skill{
		Instructions: "body",
		AllowedTools: []string{"run_explain"},
		Context:      "extra",
	}

	exp := Execute(context.Background(), s, "", nil)
	assert.Equal(t, []string{"run_explain"}, exp.AllowedTools)
	assert.Equal(t, "extra", exp.Context)
}

func TestRegistryPersonalOverridesProject(t *testing.T) {
	personal := t.TempDir()
	project := t.TempDir()

	writeSkill(t, project, "report", "---\ndescription: project version\n---\nproject body\n")
	writeSkill(t, personal, "report", "---\ndescription: personal version\n---\npersonal body\n")
	writeSkill(t, project, "only-project", "project only\n")

	r := NewRegistry(personal, project)
	defer r.Stop()

	s, ok := r.Get("report")
	require.True(t, ok)
	assert.Equal(t, "personal version", s.Description)
	assert.True(t, s.Personal)

	_, ok = r.Get("only-project")
	assert.True(t, ok)
	assert.Len(t, r.List(), 2)
}

func TestRegistryReloadPicksUpNewSkill(t *testing.T) {
	personal := t.TempDir()
	project := t.TempDir()

	r := NewRegistry(personal, project)
	defer r.Stop()
	assert.Empty(t, r.List())

	writeSkill(t, personal, "fresh", "new skill\n")
	r.Reload()

	_, ok := r.Get("fresh")
	assert.True(t, ok)
}

func TestModelInvocableFilter(t *testing.T) {
	personal := t.TempDir()
	writeSkill(t, personal, "visible", "body\n")
	writeSkill(t, personal, "hidden", "---\ndisable-model-invocation: true\n---\nbody\n")

	r := NewRegistry(personal, t.TempDir())
	defer r.Stop()

	invocable := r.ModelInvocable()
	require.Len(t, invocable, 1)
	assert.Equal(t, "visible", invocable[0].Name)
}
