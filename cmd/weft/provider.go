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
	providerKind    string
	providerAPIKey  string
	providerModel   string
	providerBaseURL string
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage LLM provider profiles",
}

var providerAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Save a provider profile",
	Long: `Save an LLM provider profile. The API key is encrypted before storage.

Known kinds: claude, openai, deepseek, qwen, gemini, ollama. Any other kind
is treated as an OpenAI-compatible gateway and requires --base-url.

Examples:
  weft provider add claude --kind claude --api-key sk-ant-...
  weft provider add local --kind ollama --model llama3.1
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
		encrypted, err := secrets.Encrypt(providerAPIKey)
		if err != nil {
			return err
		}

		prof := &store.Provider{
			Name:    args[0],
			Kind:    providerKind,
			APIKey:  encrypted,
			Model:   providerModel,
			BaseURL: providerBaseURL,
		}
		if err := st.SaveProvider(ctx, prof); err != nil {
			return err
		}
		fmt.Printf("Saved provider %q (%s)\n", prof.Name, prof.Kind)
		return nil
	},
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List provider profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		profiles, err := st.ListProviders(ctx)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("No providers saved.")
			return nil
		}
		for _, p := range profiles {
			marker := " "
			if p.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %-20s %-10s %s\n", marker, p.Name, p.Kind, p.Model)
		}
		return nil
	},
}

var providerUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Mark a provider as the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetDefaultProvider(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Default provider is now %q\n", args[0])
		return nil
	},
}

var providerRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a provider profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteProvider(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed provider %q\n", args[0])
		return nil
	},
}

func init() {
	providerAddCmd.Flags().StringVar(&providerKind, "kind", "", "provider kind")
	providerAddCmd.Flags().StringVar(&providerAPIKey, "api-key", "", "API key")
	providerAddCmd.Flags().StringVar(&providerModel, "model", "", "model identifier")
	providerAddCmd.Flags().StringVar(&providerBaseURL, "base-url", "", "endpoint override")
	_ = providerAddCmd.MarkFlagRequired("kind")

	providerCmd.AddCommand(providerAddCmd)
	providerCmd.AddCommand(providerListCmd)
	providerCmd.AddCommand(providerUseCmd)
	providerCmd.AddCommand(providerRemoveCmd)
}
