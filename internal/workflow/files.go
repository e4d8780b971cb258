// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func KeyPath(credsDir, name string) string {
	return filepath.Join(credsDir, name+".key.pem")
}

func CSRPath(credsDir, name string) string {
	return filepath.Join(credsDir, name+".csr.pem")
}

func CertPath(credsDir, name string) string {
	return filepath.Join(credsDir, name+".crt.pem")
}

// writeArtifact creates path with data.  It never replaces an existing file.
func writeArtifact(kind, path string, data []byte) error {
	if _, err := os.Lstat(path); err == nil {
		return &ConflictError{Kind: kind, Path: path}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrapf(err, "could not create directory for %s", kind)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return &ConflictError{Kind: kind, Path: path}
	}
	if err != nil {
		return errors.Wrapf(err, "could not create %s file", kind)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "could not write %s file", kind)
	}
	return errors.Wrapf(f.Close(), "could not write %s file", kind)
}
