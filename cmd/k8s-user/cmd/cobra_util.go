// Copyright 2020-2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import "github.com/spf13/cobra"

// mustMarkMutuallyExclusive panics if any of the names are wrong.
func mustMarkMutuallyExclusive(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		if cmd.Flags().Lookup(flag) == nil {
			panic("unknown flag " + flag)
		}
	}
	cmd.MarkFlagsMutuallyExclusive(flags...)
}

// mustMarkFilename marks the given flags as file names for shell completion.  If any of the names are wrong, it panics.
func mustMarkFilename(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		if err := cmd.MarkFlagFilename(flag); err != nil {
			panic(err)
		}
	}
}
