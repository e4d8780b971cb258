// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package kubeconfig assembles the kubeconfig handed to a provisioned identity from
// independently computed fragments.
package kubeconfig

import (
	"github.com/mohae/deepcopy"
)

// Fragment is a partial kubeconfig document.  ToMap must not have side effects and must return
// a map that the caller is free to modify.
type Fragment interface {
	ToMap() map[string]interface{}
}

// Literal is a Fragment whose content is given directly.
type Literal map[string]interface{}

func (l Literal) ToMap() map[string]interface{} {
	if l == nil {
		return map[string]interface{}{}
	}
	return copyMap(l)
}

type combined struct {
	left, right Fragment
}

// Combine returns a Fragment holding the top level keys of both left and right.  When both
// have the same key, the value from left is kept.  Merging is shallow.
//
// Combine(Combine(a, b), c) therefore prefers a over b, and the union of a and b over c.
func Combine(left, right Fragment) Fragment {
	return combined{left: left, right: right}
}

func (c combined) ToMap() map[string]interface{} {
	out := c.right.ToMap()
	for k, v := range c.left.ToMap() {
		out[k] = v
	}
	return out
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	return deepcopy.Copy(map[string]interface{}(m)).(map[string]interface{})
}
