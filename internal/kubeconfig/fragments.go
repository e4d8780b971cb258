// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package kubeconfig

import (
	"encoding/base64"
	"os"

	"github.com/pkg/errors"
	"k8s.io/client-go/rest"
)

// ClusterFragment renders the clusters list of a kubeconfig.
type ClusterFragment struct {
	Name                     string
	Server                   string
	CertificateAuthorityData []byte
	InsecureSkipTLSVerify    bool
}

// NewClusterFragment describes the cluster reached by restConfig.  The CA bundle is taken from
// CAData, or read from CAFile when CAData is empty.
func NewClusterFragment(name string, restConfig *rest.Config) (ClusterFragment, error) {
	caData := restConfig.CAData
	if len(caData) == 0 && restConfig.CAFile != "" {
		var err error
		caData, err = os.ReadFile(restConfig.CAFile)
		if err != nil {
			return ClusterFragment{}, errors.Wrap(err, "could not read cluster certificate authority")
		}
	}
	return ClusterFragment{
		Name:                     name,
		Server:                   restConfig.Host,
		CertificateAuthorityData: caData,
		InsecureSkipTLSVerify:    restConfig.Insecure,
	}, nil
}

func (c ClusterFragment) ToMap() map[string]interface{} {
	cluster := map[string]interface{}{
		"server": c.Server,
	}
	if len(c.CertificateAuthorityData) > 0 {
		cluster["certificate-authority-data"] = base64.StdEncoding.EncodeToString(c.CertificateAuthorityData)
	}
	if c.InsecureSkipTLSVerify {
		cluster["insecure-skip-tls-verify"] = true
	}
	return map[string]interface{}{
		"clusters": []interface{}{
			map[string]interface{}{
				"name":    c.Name,
				"cluster": cluster,
			},
		},
	}
}

// Bundle is the credential of the user entry.  It is either a KeyBundle or a TokenBundle.
type Bundle interface {
	User() string
	credentials() map[string]interface{}
}

// KeyBundle authenticates with a client certificate.  All fields hold PEM data.
// Certificate is empty when the signer never issued one.
type KeyBundle struct {
	UserName    string
	Key         []byte
	CSR         []byte
	Certificate []byte
}

func (b KeyBundle) User() string { return b.UserName }

func (b KeyBundle) credentials() map[string]interface{} {
	return map[string]interface{}{
		"client-certificate-data": base64.StdEncoding.EncodeToString(b.Certificate),
		"client-key-data":         base64.StdEncoding.EncodeToString(b.Key),
	}
}

// TokenBundle authenticates with a bearer token.
type TokenBundle struct {
	UserName string
	Token    string
}

func (b TokenBundle) User() string { return b.UserName }

func (b TokenBundle) credentials() map[string]interface{} {
	return map[string]interface{}{
		"token": b.Token,
	}
}

// UserFragment renders the users list of a kubeconfig.
type UserFragment struct {
	Bundle Bundle
}

func (u UserFragment) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"users": []interface{}{
			map[string]interface{}{
				"name": u.Bundle.User(),
				"user": u.Bundle.credentials(),
			},
		},
	}
}

// Scaffold returns the two static fragments of every kubeconfig: the document header, and the
// single context binding user to cluster.
func Scaffold(clusterName, contextName, userName string) (Literal, Literal) {
	header := Literal{
		"apiVersion":  "v1",
		"kind":        "Config",
		"preferences": map[string]interface{}{},
	}
	contexts := Literal{
		"current-context": contextName,
		"contexts": []interface{}{
			map[string]interface{}{
				"name": contextName,
				"context": map[string]interface{}{
					"cluster": clusterName,
					"user":    userName,
				},
			},
		},
	}
	return header, contexts
}
