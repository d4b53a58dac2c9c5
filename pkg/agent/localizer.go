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

package agent

// Localizer renders catalog descriptions and engine messages in the
// active language. Unknown keys fall back to English, then to the key.
type Localizer struct {
	lang string
}

// NewLocalizer creates a localizer for "en" or "zh".
func NewLocalizer(lang string) *Localizer {
	if _, ok := translations[lang]; !ok {
		lang = "en"
	}
	return &Localizer{lang: lang}
}

// T translates one key.
func (l *Localizer) T(key string) string {
	if s, ok := translations[l.lang][key]; ok {
		return s
	}
	if s, ok := translations["en"][key]; ok {
		return s
	}
	return key
}

var translations = map[string]map[string]string{
	"en": {
		"system_prompt": "You are a database assistant. You inspect schemas, run queries, tune performance and migrate schemas between engines using the provided tools. Prefer read-only tools for exploration; destructive SQL requires user confirmation. Answer concisely.",

		"max_iterations_reached":   "Stopped after reaching the iteration limit for this turn. Send a follow-up message to continue.",
		"pending_confirmation":     "This statement modifies data and needs your confirmation before it runs.",
		"performance_confirmation": "This query looks expensive. Confirm to run it anyway.",

		"tool.list_tables":           "List the tables in a schema.",
		"tool.describe_table":        "Describe a table: columns, types, nullability, defaults.",
		"tool.get_sample_data":       "Fetch a few sample rows from a table.",
		"tool.list_databases":        "List the databases visible on the server.",
		"tool.switch_database":       "Reconnect the session to a different database.",
		"tool.execute_safe_query":    "Run a read-only SQL query. Expensive analytical queries ask for confirmation first.",
		"tool.execute_sql":           "Run any SQL statement. Mutations require user confirmation.",
		"tool.run_explain":           "Show the execution plan for a statement.",
		"tool.create_index":          "Create an index, using the engine's non-blocking variant when possible.",
		"tool.analyze_table":         "Refresh the optimizer statistics for a table.",
		"tool.check_index_usage":     "Show which indexes on a table are actually used.",
		"tool.get_table_stats":       "Show size and row-count statistics for a table.",
		"tool.identify_slow_queries": "Find the slowest statements recorded by the engine.",
		"tool.get_running_queries":   "Show currently running statements.",

		"tool.analyze_source_database":    "Enumerate the source schema objects and their dependency order for migration.",
		"tool.create_migration_plan":      "Build the ordered migration plan for a task.",
		"tool.get_migration_plan":         "Show the items of a migration plan.",
		"tool.get_migration_status":       "Show a migration task's progress counters.",
		"tool.execute_migration_item":     "Execute one migration item on the target database.",
		"tool.execute_migration_batch":    "Execute up to N pending migration items in order.",
		"tool.compare_databases":          "Compare object sets between the source and target schemas.",
		"tool.generate_migration_report":  "Produce the final migration report with failures and skips.",
		"tool.skip_migration_item":        "Skip one migration item with a reason.",
		"tool.retry_failed_items":         "Reset failed migration items so they run again.",
		"tool.request_migration_setup":    "Ask the user for source and target connection details for a migration.",
		"tool.request_user_input":         "Ask the user for additional input through a form.",

		"skill_description": "Run the user-defined skill",
	},
	"zh": {
		"system_prompt": "你是一个数据库助手。你通过提供的工具查看表结构、执行查询、优化性能并在不同数据库之间迁移表结构。探索时优先使用只读工具；破坏性 SQL 需要用户确认。回答要简洁。",

		"max_iterations_reached":   "本轮已达到迭代上限，已停止。发送后续消息以继续。",
		"pending_confirmation":     "该语句会修改数据，执行前需要你的确认。",
		"performance_confirmation": "该查询可能代价较高。确认后才会执行。",

		"tool.list_tables":           "列出指定模式下的表。",
		"tool.describe_table":        "查看表结构：列、类型、可空性、默认值。",
		"tool.get_sample_data":       "获取表中的少量示例数据。",
		"tool.list_databases":        "列出服务器上可见的数据库。",
		"tool.switch_database":       "将会话切换到另一个数据库。",
		"tool.execute_safe_query":    "执行只读 SQL 查询。代价较高的分析查询会先请求确认。",
		"tool.execute_sql":           "执行任意 SQL 语句。修改操作需要用户确认。",
		"tool.run_explain":           "查看语句的执行计划。",
		"tool.create_index":          "创建索引，尽量使用引擎的非阻塞方式。",
		"tool.analyze_table":         "刷新表的优化器统计信息。",
		"tool.check_index_usage":     "查看表上哪些索引真正被使用。",
		"tool.get_table_stats":       "查看表的大小和行数统计。",
		"tool.identify_slow_queries": "找出引擎记录的最慢语句。",
		"tool.get_running_queries":   "查看正在运行的语句。",

		"tool.analyze_source_database":    "枚举源库对象及其依赖顺序，用于迁移。",
		"tool.create_migration_plan":      "为迁移任务生成有序的迁移计划。",
		"tool.get_migration_plan":         "查看迁移计划中的条目。",
		"tool.get_migration_status":       "查看迁移任务的进度计数。",
		"tool.execute_migration_item":     "在目标库上执行一个迁移条目。",
		"tool.execute_migration_batch":    "按顺序执行最多 N 个待执行的迁移条目。",
		"tool.compare_databases":          "比较源库和目标库的对象集合。",
		"tool.generate_migration_report":  "生成包含失败与跳过条目的最终迁移报告。",
		"tool.skip_migration_item":        "跳过一个迁移条目并记录原因。",
		"tool.retry_failed_items":         "重置失败的迁移条目以便重新执行。",
		"tool.request_migration_setup":    "向用户询问迁移所需的源库和目标库连接信息。",
		"tool.request_user_input":         "通过表单向用户请求额外输入。",

		"skill_description": "运行用户自定义技能",
	},
}
