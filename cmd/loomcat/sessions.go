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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/loomcat/internal/fsext"
	"github.com/teradata-labs/loomcat/internal/sessionindex"
	"github.com/teradata-labs/loomcat/pkg/config"
)

var sessionsRoot string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List discovered transcript sessions",
	Long: `List every session transcript discovered under the agent runtime's
per-user root (or --root), newest first.

Examples:
  loomcat sessions
  loomcat sessions --root ~/.claude/projects
`,
	Run: runSessionsCommand,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsRoot, "root", "", "override the discovered session root")
}

func runSessionsCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	root := sessionsRoot
	if root == "" {
		root = cfg.SessionRoot
	}
	if root == "" {
		root = sessionindex.Root()
	}

	refs, err := sessionindex.List(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing sessions: %v\n", err)
		os.Exit(1)
	}

	if len(refs) == 0 {
		fmt.Println("No sessions found under", root)
		return
	}

	fmt.Printf("%-40s %-30s %-20s\n", "SESSION ID", "PROJECT", "MODIFIED")
	fmt.Println(strings.Repeat("-", 92))
	for _, ref := range refs {
		fmt.Printf("%-40s %-30s %-20s\n", ref.SessionID, ref.ProjectDir, ref.ModTime.Format(time.RFC3339))
	}
	fmt.Printf("\nShowing %d session(s) under %s\n", len(refs), fsext.PrettyPath(root))
}
