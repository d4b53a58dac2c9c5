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

package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weftdb/weft/pkg/adapter"
	"github.com/weftdb/weft/pkg/store"
)

// Analysis is the snapshot of the source schema a plan is built from.
type Analysis struct {
	Schema     string              `json:"schema"`
	Objects    map[string][]string `json:"objects"`
	TableOrder []string            `json:"table_order"`
	FKEdges    []adapter.FKEdge    `json:"fk_edges"`
}

// phaseOrder fixes the execution sequence. The plan never depends on
// what order the LLM happened to enumerate objects in.
var phaseOrder = []string{
	store.ObjectSequence,
	store.ObjectTable,
	store.ObjectIndex,
	store.ObjectView,
	store.ObjectFunction,
	store.ObjectProcedure,
	store.ObjectTrigger,
}

// AnalyzeSource enumerates the source schema: objects per type, the
// FK-topological table order, and the FK edges themselves.
func AnalyzeSource(ctx context.Context, source adapter.Adapter, schema string) (*Analysis, error) {
	objRes := source.GetAllObjects(ctx, schema, nil)
	if objRes.Status != adapter.StatusSuccess {
		return nil, fmt.Errorf("enumerate source objects: %s", objRes.Message)
	}
	fkRes := source.GetForeignKeyDependencies(ctx, schema)
	if fkRes.Status != adapter.StatusSuccess {
		return nil, fmt.Errorf("read foreign keys: %s", fkRes.Message)
	}

	analysis := &Analysis{
		Schema:  stringValue(objRes.Data["schema"]),
		Objects: map[string][]string{},
	}
	if raw, ok := objRes.Data["objects"].(map[string]interface{}); ok {
		for objType, names := range raw {
			analysis.Objects[objType] = toStringSlice(names)
		}
	}
	analysis.TableOrder = toStringSlice(fkRes.Data["table_order"])
	if edges, ok := fkRes.Data["edges"].([]adapter.FKEdge); ok {
		analysis.FKEdges = edges
	}
	return analysis, nil
}

// BuildPlan turns an analysis into ordered migration items with the
// source DDL captured verbatim. Target DDL stays empty until execution.
func BuildPlan(ctx context.Context, source adapter.Adapter, task *store.MigrationTask, analysis *Analysis) ([]*store.MigrationItem, error) {
	var items []*store.MigrationItem
	order := 0

	dependsOn := map[string][]string{}
	for _, edge := range analysis.FKEdges {
		if edge.From != edge.To {
			dependsOn[edge.From] = append(dependsOn[edge.From], edge.To)
		}
	}

	add := func(objType, name string) error {
		ddlRes := source.GetObjectDDL(ctx, objType, name, analysis.Schema)
		if ddlRes.Status != adapter.StatusSuccess {
			return fmt.Errorf("fetch DDL for %s %s: %s", objType, name, ddlRes.Message)
		}
		items = append(items, &store.MigrationItem{
			TaskID:         task.ID,
			ObjectType:     objType,
			ObjectName:     name,
			Schema:         analysis.Schema,
			ExecutionOrder: order,
			DependsOn:      dependsOn[name],
			Status:         store.ItemPending,
			SourceDDL:      stringValue(ddlRes.Data["ddl"]),
		})
		order++
		return nil
	}

	for _, phase := range phaseOrder {
		names := analysis.Objects[phase]
		if phase == store.ObjectTable {
			names = orderTables(names, analysis.TableOrder)
		}
		for _, name := range names {
			if phase == store.ObjectIndex && isPrimaryKeyIndex(name) {
				continue
			}
			if err := add(phase, name); err != nil {
				return nil, err
			}
		}
	}
	return items, nil
}

// orderTables applies the FK-topological order; tables absent from the
// graph are appended at the end of the phase.
func orderTables(all, topo []string) []string {
	seen := map[string]bool{}
	var out []string
	inAll := map[string]bool{}
	for _, t := range all {
		inAll[t] = true
	}
	for _, t := range topo {
		if inAll[t] && !seen[t] {
			out = append(out, t)
			seen[t] = true
		}
	}
	for _, t := range all {
		if !seen[t] {
			out = append(out, t)
		}
	}
	return out
}

// isPrimaryKeyIndex filters indexes that table creation already builds.
func isPrimaryKeyIndex(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_pkey") ||
		strings.HasSuffix(lower, "_pk") ||
		lower == "primary"
}

// MarshalAnalysis serializes the analysis for persistence on the task.
func MarshalAnalysis(a *Analysis) string {
	data, err := json.Marshal(a)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func toStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
