// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"go.k8suser.dev/internal/config/userconfig"
	"go.k8suser.dev/internal/here"
	"go.k8suser.dev/internal/plog"
	"go.k8suser.dev/internal/provision"
	"go.k8suser.dev/internal/pversion"
	"go.k8suser.dev/internal/workflow"
)

type createDeps struct {
	getenv       func(key string) string
	getClientset getClientsetFunc
	// readPassword reads a line from the terminal without echo.
	readPassword func() ([]byte, error)
}

func createRealDeps() createDeps {
	return createDeps{
		getenv:       os.Getenv,
		getClientset: getRealClientset,
		readPassword: func() ([]byte, error) {
			fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in an int
			if !term.IsTerminal(fd) {
				return nil, fmt.Errorf("standard input is not a terminal")
			}
			return term.ReadPassword(fd)
		},
	}
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newCreateCommand(createRealDeps()))
}

type createFlags struct {
	configPath        string
	kubeconfig        string
	kubeconfigContext string

	clusterName   string
	contextName   string
	credsDir      string
	outKubeconfig string

	namespace   string
	labels      map[string]string
	annotations map[string]string

	inKey             string
	inCSR             string
	keyPasswordEnv    string
	keyPasswordPrompt bool
	keySize           int
	subject           []string
	dnsNames          []string
	groups            []string
	usages            []string
	signerName        string

	expirationSeconds int64
	pollTimeout       time.Duration
	pollInterval      time.Duration
	requireCredential bool
	logLevel          string
}

func newCreateCommand(deps createDeps) *cobra.Command {
	cmd := &cobra.Command{
		Args:  cobra.NoArgs, // do not accept positional arguments for this command
		Use:   "create",
		Short: "Provision an identity and write a kubeconfig for it",
	}
	for _, kind := range []provision.Kind{provision.KindCSR, provision.KindToken, provision.KindTokenRequest} {
		cmd.AddCommand(newCreateIdentityCommand(deps, kind))
	}
	return cmd
}

//nolint:gochecknoglobals
var createDescriptions = map[provision.Kind][2]string{
	provision.KindCSR: {
		"Create a user authenticated by a client certificate",
		here.Doc(`
			Create a user authenticated by a client certificate.

			Generates (or loads) a private key and a certificate signing request,
			submits the request to the cluster, approves it, waits for the
			certificate and writes a kubeconfig that uses it.  The key, request
			and certificate are saved to --creds-dir when it is set.

			Requires permission to create and approve CertificateSigningRequests
			using the current kubeconfig context.
		`),
	},
	provision.KindToken: {
		"Create a service account authenticated by its token secret",
		here.Doc(`
			Create a service account authenticated by its token secret.

			Creates the service account if it does not exist, waits for the
			cluster to populate its token secret and writes a kubeconfig that
			uses the token.
		`),
	},
	provision.KindTokenRequest: {
		"Create a service account authenticated by a bound token",
		here.Doc(`
			Create a service account authenticated by a bound token.

			Creates the service account if it does not exist, requests a token
			for it through the TokenRequest API and writes a kubeconfig that
			uses the token.  Use this for clusters which no longer create token
			secrets for service accounts.
		`),
	},
}

func newCreateIdentityCommand(deps createDeps, kind provision.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Args:  cobra.ExactArgs(1),
		Use:   kind.String() + " NAME",
		Short: createDescriptions[kind][0],
		Long:  createDescriptions[kind][1],
	}
	flags := &createFlags{}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "Path to a configuration file with defaults for every other flag")
	f.StringVar(&flags.kubeconfig, "kubeconfig", "", "Path to the kubeconfig used to reach the cluster (default: KUBECONFIG or ~/.kube/config)")
	f.StringVar(&flags.kubeconfigContext, "kubeconfig-context", "", "Kubeconfig context name (default: current active context)")
	f.StringVar(&flags.clusterName, "cluster-name", "", "Cluster name in the generated kubeconfig (default: the cluster of the kubeconfig context)")
	f.StringVar(&flags.contextName, "context-name", "", "Context name in the generated kubeconfig (default: NAME@CLUSTER)")
	f.StringVar(&flags.credsDir, "creds-dir", "", "Directory receiving the generated credentials and kubeconfig")
	f.StringVar(&flags.outKubeconfig, "out-kubeconfig", "", "Path of the generated kubeconfig (default: CREDS-DIR/NAME.kubeconfig)")
	f.StringToStringVar(&flags.labels, "label", nil, "Label to set on the created cluster objects (can be repeated)")
	f.StringToStringVar(&flags.annotations, "annotation", nil, "Annotation to set on the created cluster objects (can be repeated)")
	f.DurationVar(&flags.pollTimeout, "poll-timeout", 0, "How long to wait for the cluster to issue the credential (default 10s)")
	f.DurationVar(&flags.pollInterval, "poll-interval", 0, "How often to check whether the credential was issued (default 1s)")
	f.BoolVar(&flags.requireCredential, "require-credential", false, "Fail instead of writing a kubeconfig without credential when none was issued in time")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level (one of info, debug, trace, all)")

	switch kind {
	case provision.KindCSR:
		f.StringVar(&flags.inKey, "in-key", "", "Path to an existing PEM private key to use instead of generating one")
		f.StringVar(&flags.inCSR, "in-csr", "", "Path to an existing PEM certificate request for --in-key")
		f.StringVar(&flags.keyPasswordEnv, "key-password-env", "", "Name of the environment variable holding the password of --in-key")
		f.BoolVar(&flags.keyPasswordPrompt, "key-password-prompt", false, "Prompt for the password of --in-key")
		f.IntVar(&flags.keySize, "key-size", 0, "Size of the generated RSA key (default 4096)")
		f.StringSliceVar(&flags.subject, "subject", nil, "Extra subject attribute such as O=system:masters (can be repeated)")
		f.StringSliceVar(&flags.dnsNames, "dns-name", nil, "DNS name to request (can be repeated)")
		f.StringSliceVar(&flags.groups, "group", nil, "Group requested for the certificate signing request (default system:authenticated)")
		f.StringSliceVar(&flags.usages, "usage", nil, "Key usage to request (default \"client auth\")")
		f.StringVar(&flags.signerName, "signer-name", "", "Signer of the certificate (default kubernetes.io/kube-apiserver-client)")
		f.Int64Var(&flags.expirationSeconds, "expiration-seconds", 0, "Requested certificate lifetime (default: decided by the signer)")
		mustMarkFilename(cmd, "in-key", "in-csr")
		mustMarkMutuallyExclusive(cmd, "key-password-env", "key-password-prompt")
	case provision.KindToken:
		f.StringVarP(&flags.namespace, "namespace", "n", "", "Namespace of the service account (default \"default\")")
	case provision.KindTokenRequest:
		f.StringVarP(&flags.namespace, "namespace", "n", "", "Namespace of the service account (default \"default\")")
		f.Int64Var(&flags.expirationSeconds, "expiration-seconds", 0, "Requested token lifetime (default: decided by the cluster)")
	}
	mustMarkFilename(cmd, "config", "kubeconfig")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCreate(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), deps, kind, args[0], flags, cmd.Flags())
	}
	return cmd
}

func runCreate(ctx context.Context, stdout, stderr io.Writer, deps createDeps, kind provision.Kind, name string, flags *createFlags, changed *pflag.FlagSet) error {
	if ctx == nil {
		ctx = context.Background()
	}

	config, err := userconfig.Load(ctx, flags.configPath, flags.overrides(changed))
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	provisioner, err := provision.New(provision.Identity{
		Name:        name,
		Namespace:   config.Namespace,
		Labels:      config.Labels,
		Annotations: config.Annotations,
	}, kind)
	if err != nil {
		return err
	}

	var keyPassword []byte
	switch {
	case flags.keyPasswordEnv != "":
		keyPassword = []byte(deps.getenv(flags.keyPasswordEnv))
		if len(keyPassword) == 0 {
			return fmt.Errorf("environment variable %s does not hold a key password", flags.keyPasswordEnv)
		}
	case flags.keyPasswordPrompt:
		fmt.Fprint(stderr, "Key password: ")
		keyPassword, err = deps.readPassword()
		fmt.Fprintln(stderr)
		if err != nil {
			return fmt.Errorf("could not read key password: %w", err)
		}
	}

	clientConfig := newClientConfig(config.Kubeconfig, config.KubeconfigContext)
	clientset, restConfig, err := deps.getClientset(clientConfig)
	if err != nil {
		return fmt.Errorf("could not configure Kubernetes client: %w", err)
	}
	clusterName := config.ClusterName
	if clusterName == "" {
		if clusterName, err = currentClusterName(clientConfig, config.KubeconfigContext); err != nil {
			return fmt.Errorf("could not determine the cluster name, use --cluster-name: %w", err)
		}
	}

	logger := plog.New().WithName("create")
	serverVersion, err := clientset.Discovery().ServerVersion()
	if err != nil {
		logger.DebugErr("could not get cluster version", err)
	} else if err := pversion.CheckServer(serverVersion); err != nil {
		logger.WarningErr("cluster may not support provisioning", err)
	}

	return provisioner.Create(ctx, workflow.Params{
		Clientset:         clientset,
		RestConfig:        restConfig,
		ClusterName:       clusterName,
		ContextName:       config.ContextName,
		CredsDir:          config.CredsDir,
		OutKubeconfig:     config.OutKubeconfig,
		InKey:             flags.inKey,
		InCSR:             flags.inCSR,
		KeyPassword:       keyPassword,
		KeySize:           config.CSR.KeySize,
		Subject:           config.SubjectAttributes(),
		DNSNames:          config.CSR.DNSNames,
		Groups:            config.CSR.Groups,
		Usages:            config.KeyUsages(),
		SignerName:        config.CSR.SignerName,
		ExpirationSeconds: config.ExpirationSeconds,
		PollTimeout:       config.PollTimeout(),
		PollInterval:      config.PollInterval(),
		RequireCredential: ptr.Deref(config.RequireCredential, false),
		Out:               stdout,
		Logger:            logger,
	})
}

// overrides returns the flags which were set on the command line, so that they take precedence
// over the configuration file.
func (f *createFlags) overrides(changed *pflag.FlagSet) *userconfig.Config {
	config := &userconfig.Config{
		Log: plog.LogSpec{Level: plog.LogLevel(f.logLevel), Format: plog.FormatCLI},
	}
	set := func(name string, apply func()) {
		if flag := changed.Lookup(name); flag != nil && flag.Changed {
			apply()
		}
	}
	set("kubeconfig", func() { config.Kubeconfig = f.kubeconfig })
	set("kubeconfig-context", func() { config.KubeconfigContext = f.kubeconfigContext })
	set("cluster-name", func() { config.ClusterName = f.clusterName })
	set("context-name", func() { config.ContextName = f.contextName })
	set("creds-dir", func() { config.CredsDir = f.credsDir })
	set("out-kubeconfig", func() { config.OutKubeconfig = f.outKubeconfig })
	set("namespace", func() { config.Namespace = f.namespace })
	set("label", func() { config.Labels = f.labels })
	set("annotation", func() { config.Annotations = f.annotations })
	set("key-size", func() { config.CSR.KeySize = f.keySize })
	set("subject", func() { config.CSR.Subject = f.subject })
	set("dns-name", func() { config.CSR.DNSNames = f.dnsNames })
	set("group", func() { config.CSR.Groups = f.groups })
	set("usage", func() { config.CSR.Usages = f.usages })
	set("signer-name", func() { config.CSR.SignerName = f.signerName })
	set("expiration-seconds", func() { config.ExpirationSeconds = f.expirationSeconds })
	set("poll-timeout", func() { config.Poll.Timeout = &metav1.Duration{Duration: f.pollTimeout} })
	set("poll-interval", func() { config.Poll.Interval = &metav1.Duration{Duration: f.pollInterval} })
	set("require-credential", func() { config.RequireCredential = ptr.To(f.requireCredential) })
	return config
}
