/*
Copyright 2026 jr42.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"net/netip"
	"sync"

	"github.com/jr42/homenet-pa/internal/pa"
)

// AppliedPrefixCache is a pa.User that tracks, per Link name, the prefix
// the assignment engine has converged on and applied. The sync
// reconcilers (PoolSync/BGPSync/ServiceSync) consult it instead of a
// DynamicPrefix CR's status, since a Link's assignment can change
// independently of any CRD write.
type AppliedPrefixCache struct {
	pa.NopUser

	mu      sync.RWMutex
	applied map[string]netip.Prefix
}

// NewAppliedPrefixCache returns an empty cache ready to register with a
// pa.Core via Core.UserRegister.
func NewAppliedPrefixCache() *AppliedPrefixCache {
	return &AppliedPrefixCache{applied: make(map[string]netip.Prefix)}
}

// OnApplied records or clears the converged prefix for ldp.Link.Name,
// mirroring ldp.Applied.
func (c *AppliedPrefixCache) OnApplied(ldp *pa.LDP) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ldp.Applied {
		c.applied[ldp.Link.Name] = ldp.Prefix
	} else {
		delete(c.applied, ldp.Link.Name)
	}
}

// Get returns the prefix currently applied on the named Link, if any.
func (c *AppliedPrefixCache) Get(linkName string) (netip.Prefix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.applied[linkName]
	return p, ok
}
