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

	"github.com/weftdb/weft/pkg/store"
)

var (
	connKind     string
	connHost     string
	connPort     int
	connDatabase string
	connUsername string
	connPassword string
)

var connectionCmd = &cobra.Command{
	Use:     "connection",
	Aliases: []string{"conn"},
	Short:   "Manage database connection profiles",
}

var connectionAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Save a connection profile",
	Long: `Save a connection profile. The password is encrypted with the
configured secret backend before it is stored.

Examples:
  weft connection add prod --kind postgresql --host db.internal --port 5432 \
      --database app --username weft --password s3cret
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		secrets, err := secretStore()
		if err != nil {
			return err
		}
		encrypted, err := secrets.Encrypt(connPassword)
		if err != nil {
			return err
		}

		conn := &store.Connection{
			Name:     args[0],
			Kind:     connKind,
			Host:     connHost,
			Port:     connPort,
			Database: connDatabase,
			Username: connUsername,
			Password: encrypted,
		}
		if err := st.SaveConnection(ctx, conn); err != nil {
			return err
		}
		fmt.Printf("Saved connection %q (%s)\n", conn.Name, conn.Kind)
		return nil
	},
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connection profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		conns, err := st.ListConnections(ctx)
		if err != nil {
			return err
		}
		if len(conns) == 0 {
			fmt.Println("No connections saved.")
			return nil
		}
		for _, c := range conns {
			marker := " "
			if c.IsActive {
				marker = "*"
			}
			fmt.Printf("%s %-20s %-12s %s@%s:%d/%s\n",
				marker, c.Name, c.Kind, c.Username, c.Host, c.Port, c.Database)
		}
		return nil
	},
}

var connectionUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Mark a connection as active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetActiveConnection(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active connection is now %q\n", args[0])
		return nil
	},
}

var connectionRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a connection profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteConnection(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed connection %q\n", args[0])
		return nil
	},
}

func init() {
	connectionAddCmd.Flags().StringVar(&connKind, "kind", "", "engine kind: postgresql, mysql, gaussdb, oracle, sqlserver")
	connectionAddCmd.Flags().StringVar(&connHost, "host", "localhost", "server host")
	connectionAddCmd.Flags().IntVar(&connPort, "port", 0, "server port (engine default when omitted)")
	connectionAddCmd.Flags().StringVar(&connDatabase, "database", "", "database name")
	connectionAddCmd.Flags().StringVar(&connUsername, "username", "", "login user")
	connectionAddCmd.Flags().StringVar(&connPassword, "password", "", "login password")
	_ = connectionAddCmd.MarkFlagRequired("kind")

	connectionCmd.AddCommand(connectionAddCmd)
	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionUseCmd)
	connectionCmd.AddCommand(connectionRemoveCmd)
}
