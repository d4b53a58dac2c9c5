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
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/pkg/store"
)

var mcpEnv []string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage external tool servers",
	Long: `Manage external tool servers. Enabled servers are launched when a chat
starts; their tools join the catalog under the <server>__<tool> name.`,
}

var mcpAddCmd = &cobra.Command{
	Use:   "add <name> -- <command> [args...]",
	Short: "Save a tool server launch configuration",
	Long: `Save a tool server launch configuration.

Examples:
  weft mcp add fs -- npx -y @modelcontextprotocol/server-filesystem /data
  weft mcp add search --env API_KEY=xyz -- search-server --port 0
`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		env := map[string]string{}
		for _, kv := range mcpEnv {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid --env %q, want KEY=VALUE", kv)
			}
			env[key] = value
		}

		srv := &store.MCPServer{
			Name:    args[0],
			Command: args[1],
			Args:    args[2:],
			Env:     env,
			Enabled: true,
		}
		if err := st.SaveMCPServer(ctx, srv); err != nil {
			return err
		}
		fmt.Printf("Saved tool server %q\n", srv.Name)
		return nil
	},
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tool server configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		servers, err := st.ListMCPServers(ctx, false)
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			fmt.Println("No tool servers configured.")
			return nil
		}
		for _, s := range servers {
			state := "disabled"
			if s.Enabled {
				state = "enabled"
			}
			fmt.Printf("%-20s %-8s %s %s\n", s.Name, state, s.Command, strings.Join(s.Args, " "))
		}
		return nil
	},
}

var mcpRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a tool server configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.DeleteMCPServer(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed tool server %q\n", args[0])
		return nil
	},
}

func init() {
	mcpAddCmd.Flags().StringArrayVar(&mcpEnv, "env", nil, "environment variable KEY=VALUE (repeatable)")

	mcpCmd.AddCommand(mcpAddCmd)
	mcpCmd.AddCommand(mcpListCmd)
	mcpCmd.AddCommand(mcpRemoveCmd)
}
