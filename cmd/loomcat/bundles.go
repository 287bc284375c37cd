// Copyright 2026 Teradata
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
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/loomcat/internal/correlate"
	"github.com/teradata-labs/loomcat/internal/fsext"
	"github.com/teradata-labs/loomcat/internal/hookstore"
	"github.com/teradata-labs/loomcat/internal/sessionindex"
	"github.com/teradata-labs/loomcat/pkg/config"
)

var bundlesRoot string

var bundlesCmd = &cobra.Command{
	Use:   "bundles <session-id-or-transcript-path>",
	Short: "Reconstruct and print the bundle sequence for one session",
	Long: `Reconstruct a chronological, token-attributed bundle sequence from a
session's transcript, optionally enriched from the ephemeral hook-response
store.

Examples:
  loomcat bundles abcd1234-ef56-...
  loomcat bundles ./transcript.jsonl
`,
	Args: cobra.ExactArgs(1),
	Run:  runBundlesCommand,
}

func init() {
	bundlesCmd.Flags().StringVar(&bundlesRoot, "root", "", "override the discovered session root")
}

func runBundlesCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	target := args[0]
	path := target
	sessionID := sessionindex.SanitizeID(strings.TrimSuffix(filepath.Base(target), filepath.Ext(target)))

	if !fsext.Exists(target) {
		root := bundlesRoot
		if root == "" {
			root = cfg.SessionRoot
		}
		if root == "" {
			root = sessionindex.Root()
		}
		refs, _ := sessionindex.List(root)
		found := false
		want := sessionindex.SanitizeID(target)
		for _, ref := range refs {
			if ref.SessionID == want {
				path = ref.Path
				sessionID = ref.SessionID
				found = true
				break
			}
		}
		if !found {
			fmt.Fprintf(os.Stderr, "Error: no session matching %q found under %s\n", target, root)
			os.Exit(1)
		}
	}

	fmt.Printf("Reconstructing bundles from %s\n", fsext.DirTrim(fsext.PrettyPath(path), 60))

	store := hookstore.Open(cfg.HookStorePath)
	defer store.Close()

	bundles := correlate.New().Run(sessionID, path, store)
	if len(bundles) == 0 {
		fmt.Println("No bundles reconstructed.")
		return
	}

	for _, b := range bundles {
		kind := "bundle"
		if b.IsSubAgent {
			kind = "subagent:" + b.SubAgentType
		}
		fmt.Printf("[%d] %-24s tokens=%-6d ops=%d\n", b.Timestamp, kind, b.TotalTokens, len(b.Operations))
		for _, op := range b.Operations {
			fmt.Printf("    %-14s %s\n", op.Tool, op.Details)
		}
	}
}
