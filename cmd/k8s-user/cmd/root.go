// Copyright 2020-2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"go.k8suser.dev/internal/plog"
)

//nolint:gochecknoglobals
var rootCmd = &cobra.Command{
	Use:          "k8s-user",
	Short:        "k8s-user",
	Long:         "k8s-user provisions Kubernetes users and service accounts and writes a kubeconfig for each of them.",
	SilenceUsage: true, // do not print usage message when commands fail
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// ctx is cancelled when the process is asked to stop.
func Execute(ctx context.Context) error {
	flush := plog.Setup()
	defer flush()
	return rootCmd.ExecuteContext(ctx)
}
