// Copyright 2023-2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pversion reports the version of the k8s-user binary and checks the version of the
// cluster it talks to.
package pversion

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/coreos/go-semver/semver"
	apimachineryversion "k8s.io/apimachinery/pkg/version"
	k8sstrings "k8s.io/utils/strings"
)

// readBuildInfo is meant to be overwritten by tests.
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var readBuildInfo = debug.ReadBuildInfo

// gitVersion is set using a linker flag
// -ldflags "-X 'go.k8suser.dev/internal/pversion.gitVersion=v9.8.7'"
// (or set for unit tests).
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var gitVersion string

// MinimumServerVersion is the oldest Kubernetes release serving certificates.k8s.io/v1 and
// bound service account tokens with an expiration.
//
//nolint:gochecknoglobals
var MinimumServerVersion = semver.Version{Major: 1, Minor: 19}

// Get returns the version of this binary, built from the linker provided tag and the VCS
// information that the go toolchain embeds.
func Get() apimachineryversion.Info {
	info := apimachineryversion.Info{
		Major:        "0",
		Minor:        "0",
		GitVersion:   "v0.0.0",
		GitTreeState: "dirty",
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if v, err := parse(gitVersion); err == nil {
		info.GitVersion = gitVersion
		info.Major = fmt.Sprintf("%d", v.Major)
		info.Minor = fmt.Sprintf("%d", v.Minor)
	}

	if buildInfo, ok := readBuildInfo(); ok {
		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.GitCommit = setting.Value
			case "vcs.time":
				info.BuildDate = setting.Value
			case "vcs.modified":
				if setting.Value == "false" {
					info.GitTreeState = "clean"
				}
			}
		}
	}

	if info.GitVersion == "v0.0.0" && info.GitCommit != "" {
		info.GitVersion += fmt.Sprintf("-%s-%s",
			k8sstrings.ShortenString(info.GitCommit, 8),
			info.GitTreeState)
	}

	return info
}

// CheckServer returns an error when the cluster's version is known to be older than
// MinimumServerVersion.  Versions that cannot be parsed are accepted.
func CheckServer(server *apimachineryversion.Info) error {
	if server == nil {
		return nil
	}
	v, err := parse(server.GitVersion)
	if err != nil {
		return nil //nolint:nilerr // distributions with odd version strings are given the benefit of the doubt
	}
	// compare without pre-release and metadata, "v1.30.2-gke.1" is a 1.30 cluster
	release := semver.Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
	if release.LessThan(MinimumServerVersion) {
		return fmt.Errorf("cluster version %s is older than the minimum supported version v%s", server.GitVersion, MinimumServerVersion.String())
	}
	return nil
}

func parse(version string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(version, "v"))
}
