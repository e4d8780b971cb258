// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package userconfig loads the optional configuration file of the k8s-user CLI and combines it
// with command line flags.
package userconfig

import (
	"context"
	"fmt"
	"math"
	"os"
	"reflect"
	"time"

	"dario.cat/mergo"
	certificatesv1 "k8s.io/api/certificates/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"

	"go.k8suser.dev/internal/authority"
	"go.k8suser.dev/internal/pki"
	"go.k8suser.dev/internal/plog"
	"go.k8suser.dev/internal/workflow"
)

const (
	DefaultNamespace = "default"

	minKeySize = 2048
	// the certificates API rejects anything shorter
	minExpirationSeconds = 600
)

//nolint:gochecknoglobals
var knownUsages = sets.New[certificatesv1.KeyUsage](
	certificatesv1.UsageSigning,
	certificatesv1.UsageDigitalSignature,
	certificatesv1.UsageContentCommitment,
	certificatesv1.UsageKeyEncipherment,
	certificatesv1.UsageKeyAgreement,
	certificatesv1.UsageDataEncipherment,
	certificatesv1.UsageCertSign,
	certificatesv1.UsageCRLSign,
	certificatesv1.UsageEncipherOnly,
	certificatesv1.UsageDecipherOnly,
	certificatesv1.UsageAny,
	certificatesv1.UsageServerAuth,
	certificatesv1.UsageClientAuth,
	certificatesv1.UsageCodeSigning,
	certificatesv1.UsageEmailProtection,
	certificatesv1.UsageSMIME,
	certificatesv1.UsageIPsecEndSystem,
	certificatesv1.UsageIPsecTunnel,
	certificatesv1.UsageIPsecUser,
	certificatesv1.UsageTimestamping,
	certificatesv1.UsageOCSPSigning,
	certificatesv1.UsageMicrosoftSGC,
	certificatesv1.UsageNetscapeSGC,
)

// FromPath loads a Config from a local file, inserts defaults and validates it.
func FromPath(ctx context.Context, path string) (*Config, error) {
	return Load(ctx, path, nil)
}

// Load reads the file at path (if path is not empty), lets every non-empty field of overrides
// replace the value from the file, inserts defaults for whatever is still unset, and validates
// the result.  It also applies the log settings globally.
func Load(ctx context.Context, path string, overrides *Config) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &config); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	if overrides != nil {
		if err := mergo.Merge(&config, overrides, mergo.WithOverride, mergo.WithTransformers(explicitBools{})); err != nil {
			return nil, fmt.Errorf("merge flags: %w", err)
		}
	}

	maybeSetDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err := plog.ValidateAndSetLogLevelAndFormatGlobally(ctx, config.Log); err != nil {
		return nil, fmt.Errorf("validate log level: %w", err)
	}

	return &config, nil
}

// explicitBools lets a flag set to false replace a true from the file.  mergo would otherwise
// treat the false as an empty value and keep the file's setting.
type explicitBools struct{}

func (explicitBools) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf((*bool)(nil)) {
		return nil
	}
	return func(dst, src reflect.Value) error {
		if !src.IsNil() && dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}

func maybeSetDefaults(config *Config) {
	if config.Namespace == "" {
		config.Namespace = DefaultNamespace
	}
	if config.CSR.KeySize == 0 {
		config.CSR.KeySize = pki.DefaultKeySize
	}
	if len(config.CSR.Groups) == 0 {
		config.CSR.Groups = append([]string(nil), authority.DefaultGroups...)
	}
	if len(config.CSR.Usages) == 0 {
		for _, usage := range authority.DefaultUsages {
			config.CSR.Usages = append(config.CSR.Usages, string(usage))
		}
	}
	if config.CSR.SignerName == "" {
		config.CSR.SignerName = certificatesv1.KubeAPIServerClientSignerName
	}
	if config.Poll.Timeout == nil {
		config.Poll.Timeout = &metav1.Duration{Duration: workflow.DefaultPollTimeout}
	}
	if config.Poll.Interval == nil {
		config.Poll.Interval = &metav1.Duration{Duration: workflow.DefaultPollInterval}
	}
	if config.RequireCredential == nil {
		config.RequireCredential = ptr.To(false)
	}
}

func validate(config *Config) error {
	var errs []error

	if config.CSR.KeySize < minKeySize {
		errs = append(errs, fmt.Errorf("csr.keySize must be at least %d", minKeySize))
	}
	var attrs []pki.Attribute
	for _, s := range config.CSR.Subject {
		attr, err := pki.ParseAttribute(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("csr.subject: %w", err))
			continue
		}
		attrs = append(attrs, attr)
	}
	if _, err := pki.Subject("placeholder", attrs); err != nil {
		errs = append(errs, fmt.Errorf("csr.subject: %w", err))
	}
	for _, u := range config.CSR.Usages {
		if !knownUsages.Has(certificatesv1.KeyUsage(u)) {
			errs = append(errs, fmt.Errorf("csr.usages: unknown key usage %q", u))
		}
	}
	if e := config.ExpirationSeconds; e != 0 && (e < minExpirationSeconds || e > math.MaxInt32) {
		errs = append(errs, fmt.Errorf("expirationSeconds must be between %d and %d", minExpirationSeconds, math.MaxInt32))
	}
	if config.Poll.Timeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("poll.timeout must be positive"))
	}
	if config.Poll.Interval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// SubjectAttributes returns the parsed csr.subject entries.  The config must be validated.
func (c *Config) SubjectAttributes() []pki.Attribute {
	attrs := make([]pki.Attribute, 0, len(c.CSR.Subject))
	for _, s := range c.CSR.Subject {
		attr, _ := pki.ParseAttribute(s)
		attrs = append(attrs, attr)
	}
	return attrs
}

// KeyUsages returns csr.usages as certificate API key usages.
func (c *Config) KeyUsages() []certificatesv1.KeyUsage {
	usages := make([]certificatesv1.KeyUsage, 0, len(c.CSR.Usages))
	for _, u := range c.CSR.Usages {
		usages = append(usages, certificatesv1.KeyUsage(u))
	}
	return usages
}

// PollTimeout and PollInterval return the poll settings of a validated config.
func (c *Config) PollTimeout() time.Duration  { return c.Poll.Timeout.Duration }
func (c *Config) PollInterval() time.Duration { return c.Poll.Interval.Duration }
