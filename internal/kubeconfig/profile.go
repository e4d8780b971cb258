// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package kubeconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// Profile is the complete kubeconfig of one identity on one cluster.
type Profile struct {
	cluster     ClusterFragment
	user        UserFragment
	contextName string

	generated map[string]interface{}
}

func NewProfile(cluster ClusterFragment, bundle Bundle, contextName string) *Profile {
	return &Profile{
		cluster:     cluster,
		user:        UserFragment{Bundle: bundle},
		contextName: contextName,
	}
}

// Fragment returns the composition that Generate evaluates.
func (p *Profile) Fragment() Fragment {
	header, contexts := Scaffold(p.cluster.Name, p.contextName, p.user.Bundle.User())
	return Combine(Combine(p.cluster, p.user), Combine(header, contexts))
}

// Generate evaluates the profile.  The result is computed once, later calls return a copy of
// it that the caller may modify.
func (p *Profile) Generate() (map[string]interface{}, error) {
	doc, err := p.generate()
	if err != nil {
		return nil, err
	}
	return copyMap(doc), nil
}

func (p *Profile) generate() (map[string]interface{}, error) {
	if p.generated != nil {
		return p.generated, nil
	}
	doc := p.Fragment().ToMap()
	if err := checkSingleEntries(doc); err != nil {
		return nil, err
	}
	p.generated = doc
	return doc, nil
}

// Save writes the profile as YAML to path, replacing any existing file.  The profile is only
// generated if it was not generated before.
func (p *Profile) Save(path string) error {
	doc, err := p.generate()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "could not encode kubeconfig")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrap(err, "could not create kubeconfig directory")
		}
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return errors.Wrap(err, "could not write kubeconfig")
	}
	return nil
}

func checkSingleEntries(doc map[string]interface{}) error {
	for _, key := range []string{"clusters", "users", "contexts"} {
		entries, _ := doc[key].([]interface{})
		if len(entries) != 1 {
			return fmt.Errorf("kubeconfig must have exactly one entry in %s, found %d", key, len(entries))
		}
	}
	context, _ := doc["contexts"].([]interface{})[0].(map[string]interface{})
	if current := doc["current-context"]; context == nil || context["name"] != current {
		return fmt.Errorf("current-context %v does not name the kubeconfig's context", current)
	}
	return nil
}
