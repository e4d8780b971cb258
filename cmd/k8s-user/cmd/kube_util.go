// Copyright 2021-2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	// the ambient kubeconfig may authenticate through a client-go auth provider
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// getClientsetFunc returns a clientset for the cluster selected by clientConfig, along with the
// rest config it was built from.
type getClientsetFunc func(clientConfig clientcmd.ClientConfig) (kubernetes.Interface, *rest.Config, error)

// getRealClientset returns a real implementation of a kubernetes.Interface.
func getRealClientset(clientConfig clientcmd.ClientConfig) (kubernetes.Interface, *rest.Config, error) {
	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, nil, err
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, err
	}
	return clientset, restConfig, nil
}

// newClientConfig returns a clientcmd.ClientConfig given an optional kubeconfig path override and
// an optional context override.
func newClientConfig(kubeconfigPathOverride string, currentContextName string) clientcmd.ClientConfig {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	loadingRules.ExplicitPath = kubeconfigPathOverride
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{
		CurrentContext: currentContextName,
	})
	return clientConfig
}

// currentClusterName returns the name of the cluster referenced by the selected context.
func currentClusterName(clientConfig clientcmd.ClientConfig, currentContextNameOverride string) (string, error) {
	rawConfig, err := clientConfig.RawConfig()
	if err != nil {
		return "", err
	}
	contextName := rawConfig.CurrentContext
	if len(currentContextNameOverride) > 0 {
		contextName = currentContextNameOverride
	}
	kubeContext, ok := rawConfig.Contexts[contextName]
	if !ok || kubeContext.Cluster == "" {
		return "", fmt.Errorf("kubeconfig context %q does not name a cluster", contextName)
	}
	return kubeContext.Cluster, nil
}
