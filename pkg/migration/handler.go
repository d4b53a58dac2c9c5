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
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
	"github.com/weftdb/weft/pkg/adapter"
	"github.com/weftdb/weft/pkg/store"
)

// Options are the per-task knobs stored as JSON on the task row.
type Options struct {
	AutoExecute bool `json:"auto_execute"`
}

// ParseOptions decodes a task's options JSON. Unset fields default off.
func ParseOptions(raw string) Options {
	var opts Options
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &opts)
	}
	return opts
}

// ProgressFunc observes item transitions during batch execution.
type ProgressFunc func(item *store.MigrationItem)

// Handler orchestrates one migration between a source and a target
// adapter, persisting every transition.
type Handler struct {
	st     *store.Store
	source adapter.Adapter
	target adapter.Adapter

	// OnProgress, when set, is called after every item transition.
	OnProgress ProgressFunc
}

// NewHandler wires a handler over the store and the two adapters.
func NewHandler(st *store.Store, source, target adapter.Adapter) *Handler {
	return &Handler{st: st, source: source, target: target}
}

// Analyze enumerates the source schema without persisting anything.
func (h *Handler) Analyze(ctx context.Context, schema string) (*Analysis, error) {
	return AnalyzeSource(ctx, h.source, schema)
}

// CreatePlan analyzes the source schema and materializes the ordered
// item list for the task. The task moves pending -> planning -> confirmed.
func (h *Handler) CreatePlan(ctx context.Context, task *store.MigrationTask) (*Analysis, error) {
	if err := h.st.UpdateMigrationTaskStatus(ctx, task.ID, store.TaskPlanning); err != nil {
		return nil, err
	}

	analysis, err := AnalyzeSource(ctx, h.source, task.SourceSchema)
	if err != nil {
		return nil, err
	}
	if err := h.st.SetMigrationTaskAnalysis(ctx, task.ID, MarshalAnalysis(analysis)); err != nil {
		return nil, err
	}

	items, err := BuildPlan(ctx, h.source, task, analysis)
	if err != nil {
		return nil, err
	}
	if err := h.st.AddMigrationItems(ctx, items); err != nil {
		return nil, err
	}
	if err := h.st.UpdateMigrationTaskCounters(ctx, task.ID, len(items), 0, 0, 0); err != nil {
		return nil, err
	}
	if err := h.st.UpdateMigrationTaskStatus(ctx, task.ID, store.TaskConfirmed); err != nil {
		return nil, err
	}

	log.Info("migration plan created",
		zap.String("task", task.ID),
		zap.Int("items", len(items)))
	return analysis, nil
}

// ExecuteItem converts one item's DDL and runs it on the target with
// confirmation pre-granted. The item ends completed, failed, or skipped.
func (h *Handler) ExecuteItem(ctx context.Context, task *store.MigrationTask, item *store.MigrationItem) error {
	if item.Status != store.ItemPending {
		return fmt.Errorf("item %s is %s, only pending items execute", item.ObjectName, item.Status)
	}

	item.Status = store.ItemExecuting
	if err := h.st.UpdateMigrationItem(ctx, item); err != nil {
		return err
	}

	targetDDL := item.TargetDDL
	if targetDDL == "" {
		conv, err := ConvertDDL(item.SourceDDL, task.SourceKind, task.TargetKind, item.ObjectType)
		if err != nil {
			return h.finishItem(ctx, task, item, store.ItemFailed, "", err.Error())
		}
		if conv.SkipReason != "" {
			item.ConversionNotes = conv.SkipReason
			return h.finishItem(ctx, task, item, store.ItemSkipped, "", "")
		}
		targetDDL = conv.DDL
		item.ConversionNotes = strings.Join(conv.Notes, "; ")
	}

	res := h.target.ExecuteSQL(ctx, targetDDL, true)
	if res.Status != adapter.StatusSuccess {
		return h.finishItem(ctx, task, item, store.ItemFailed, targetDDL, res.Message)
	}

	item.ExecutionResult = res.Message
	return h.finishItem(ctx, task, item, store.ItemCompleted, targetDDL, "")
}

// finishItem records the terminal state and refreshes the task counters.
func (h *Handler) finishItem(ctx context.Context, task *store.MigrationTask, item *store.MigrationItem, status, targetDDL, errText string) error {
	item.Status = status
	item.TargetDDL = targetDDL
	item.Error = errText
	if err := h.st.UpdateMigrationItem(ctx, item); err != nil {
		return err
	}
	if h.OnProgress != nil {
		h.OnProgress(item)
	}
	return h.refreshCounters(ctx, task.ID)
}

// refreshCounters recomputes the task counters from item states.
func (h *Handler) refreshCounters(ctx context.Context, taskID string) error {
	items, err := h.st.GetMigrationItems(ctx, taskID)
	if err != nil {
		return err
	}
	var completed, failed, skipped int
	for _, item := range items {
		switch item.Status {
		case store.ItemCompleted:
			completed++
		case store.ItemFailed:
			failed++
		case store.ItemSkipped:
			skipped++
		}
	}
	return h.st.UpdateMigrationTaskCounters(ctx, taskID, len(items), completed, failed, skipped)
}

// ExecuteBatch drains up to n pending items in execution order. n <= 0
// drains everything. The task ends completed only when nothing failed.
func (h *Handler) ExecuteBatch(ctx context.Context, taskID string, n int) (*store.MigrationTask, error) {
	task, err := h.st.GetMigrationTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := h.st.UpdateMigrationTaskStatus(ctx, taskID, store.TaskExecuting); err != nil {
		return nil, err
	}

	items, err := h.st.GetMigrationItems(ctx, taskID)
	if err != nil {
		return nil, err
	}

	executed := 0
	for _, item := range items {
		if item.Status != store.ItemPending {
			continue
		}
		if n > 0 && executed >= n {
			break
		}
		if err := h.ExecuteItem(ctx, task, item); err != nil {
			return nil, err
		}
		executed++
	}

	task, err = h.st.GetMigrationTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	remaining := task.TotalCount - task.CompletedCount - task.FailedCount - task.SkippedCount
	if remaining == 0 {
		final := store.TaskCompleted
		if task.FailedCount > 0 {
			final = store.TaskFailed
		}
		if err := h.st.UpdateMigrationTaskStatus(ctx, taskID, final); err != nil {
			return nil, err
		}
		task.Status = final
	}
	return task, nil
}

// RetryFailed flips every failed item back to pending and bumps its
// retry counter. The failed task counter drops accordingly; completed
// never decreases.
func (h *Handler) RetryFailed(ctx context.Context, taskID string) (int, error) {
	items, err := h.st.GetMigrationItems(ctx, taskID)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, item := range items {
		if item.Status != store.ItemFailed {
			continue
		}
		item.Status = store.ItemPending
		item.Error = ""
		item.RetryCount++
		if err := h.st.UpdateMigrationItem(ctx, item); err != nil {
			return retried, err
		}
		retried++
	}
	if retried > 0 {
		if err := h.st.UpdateMigrationTaskStatus(ctx, taskID, store.TaskConfirmed); err != nil {
			return retried, err
		}
		if err := h.refreshCounters(ctx, taskID); err != nil {
			return retried, err
		}
	}
	return retried, nil
}

// SkipItem marks a pending or failed item skipped with a reason.
func (h *Handler) SkipItem(ctx context.Context, taskID, itemID, reason string) error {
	items, err := h.st.GetMigrationItems(ctx, taskID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ID != itemID {
			continue
		}
		if item.Status == store.ItemCompleted {
			return fmt.Errorf("item %s already completed", item.ObjectName)
		}
		item.Status = store.ItemSkipped
		item.ConversionNotes = reason
		if err := h.st.UpdateMigrationItem(ctx, item); err != nil {
			return err
		}
		return h.refreshCounters(ctx, taskID)
	}
	return store.ErrNotFound
}

// Report summarizes the task: counts, a per-type breakdown, and every
// failed or skipped item in full.
type Report struct {
	TaskID     string                    `json:"task_id"`
	Status     string                    `json:"status"`
	Total      int                       `json:"total"`
	Completed  int                       `json:"completed"`
	Failed     int                       `json:"failed"`
	Skipped    int                       `json:"skipped"`
	ByType     map[string]map[string]int `json:"by_type"`
	FailedList []*store.MigrationItem    `json:"failed_items"`
	SkippedLst []*store.MigrationItem    `json:"skipped_items"`
}

// GenerateReport emits the final snapshot for a task.
func (h *Handler) GenerateReport(ctx context.Context, taskID string) (*Report, error) {
	task, err := h.st.GetMigrationTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	items, err := h.st.GetMigrationItems(ctx, taskID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		TaskID:    task.ID,
		Status:    task.Status,
		Total:     task.TotalCount,
		Completed: task.CompletedCount,
		Failed:    task.FailedCount,
		Skipped:   task.SkippedCount,
		ByType:    map[string]map[string]int{},
	}
	for _, item := range items {
		byStatus := report.ByType[item.ObjectType]
		if byStatus == nil {
			byStatus = map[string]int{}
			report.ByType[item.ObjectType] = byStatus
		}
		byStatus[item.Status]++

		switch item.Status {
		case store.ItemFailed:
			report.FailedList = append(report.FailedList, item)
		case store.ItemSkipped:
			report.SkippedLst = append(report.SkippedLst, item)
		}
	}
	return report, nil
}

// CompareDatabases diffs object name sets per type between the source
// and target schemas.
func (h *Handler) CompareDatabases(ctx context.Context, sourceSchema, targetSchema string) (map[string]interface{}, error) {
	srcRes := h.source.GetAllObjects(ctx, sourceSchema, nil)
	if srcRes.Status != adapter.StatusSuccess {
		return nil, fmt.Errorf("enumerate source: %s", srcRes.Message)
	}
	tgtRes := h.target.GetAllObjects(ctx, targetSchema, nil)
	if tgtRes.Status != adapter.StatusSuccess {
		return nil, fmt.Errorf("enumerate target: %s", tgtRes.Message)
	}

	src := objectSets(srcRes)
	tgt := objectSets(tgtRes)

	types := map[string]bool{}
	for t := range src {
		types[t] = true
	}
	for t := range tgt {
		types[t] = true
	}

	diff := map[string]interface{}{}
	for t := range types {
		missing := subtract(src[t], tgt[t])
		extra := subtract(tgt[t], src[t])
		diff[t] = map[string]interface{}{
			"source_count":      len(src[t]),
			"target_count":      len(tgt[t]),
			"missing_on_target": missing,
			"extra_on_target":   extra,
		}
	}
	return diff, nil
}

func objectSets(res *adapter.Result) map[string][]string {
	out := map[string][]string{}
	if raw, ok := res.Data["objects"].(map[string]interface{}); ok {
		for t, names := range raw {
			out[t] = toStringSlice(names)
		}
	}
	return out
}

func subtract(a, b []string) []string {
	inB := map[string]bool{}
	for _, s := range b {
		inB[s] = true
	}
	var out []string
	for _, s := range a {
		if !inB[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
