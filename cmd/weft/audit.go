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
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	auditSession string
	auditLimit   int
	auditDays    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.ListAudit(ctx, auditSession, auditLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No audit records.")
			return nil
		}
		for _, rec := range records {
			detail := rec.SQLText
			if detail == "" {
				detail = rec.TargetName
			}
			fmt.Printf("%s  %-13s %-20s %-8s %s\n",
				rec.CreatedAt.Format("2006-01-02 15:04:05"),
				rec.Category, rec.Action, rec.ResultStatus, detail)
		}
		return nil
	},
}

var auditPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete audit records older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		days := auditDays
		if days <= 0 {
			days = cfg.Audit.RetentionDays
		}
		deleted, err := st.CleanupAudit(ctx, days)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d audit records older than %d days\n", deleted, days)
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditSession, "session", "", "filter by session id")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "max records")
	auditPurgeCmd.Flags().IntVar(&auditDays, "days", 0, "retention days (default from config)")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditPurgeCmd)
}
