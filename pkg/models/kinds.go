package models

import (
	"sort"
	"strings"
	"sync"
)

// Registered event kinds. The vocabulary is closed but extensible through
// KindRegistry.Register.
const (
	KindFailedLogin     = "failed_login"
	KindSuccessfulLogin = "successful_login"
	KindRoleChange      = "role_change"
	KindPermissionGrant = "permission_grant"
	KindAdminAction     = "admin_action"
	KindBulkDownload    = "bulk_download"
	KindExternalShare   = "external_share"
	KindPasswordChange  = "password_change"
	KindEmailChange     = "email_change"
	KindSuspiciousLogin = "suspicious_login"
	KindChannelScan     = "channel_scan"
	KindMemberScan      = "member_scan"
	KindPermissionScan  = "permission_scan"
)

// DefaultKinds returns the built-in event kind vocabulary.
func DefaultKinds() []string {
	return []string{
		KindFailedLogin,
		KindSuccessfulLogin,
		KindRoleChange,
		KindPermissionGrant,
		KindAdminAction,
		KindBulkDownload,
		KindExternalShare,
		KindPasswordChange,
		KindEmailChange,
		KindSuspiciousLogin,
		KindChannelScan,
		KindMemberScan,
		KindPermissionScan,
	}
}

// KindRegistry validates event kinds at ingestion and pattern kinds at
// catalog load. Safe for concurrent use.
type KindRegistry struct {
	mu    sync.RWMutex
	kinds map[string]struct{}
}

// NewKindRegistry creates a registry seeded with the default vocabulary plus
// any extra kinds.
func NewKindRegistry(extra ...string) *KindRegistry {
	r := &KindRegistry{kinds: make(map[string]struct{}, 16)}
	for _, k := range DefaultKinds() {
		r.kinds[k] = struct{}{}
	}
	for _, k := range extra {
		k = strings.TrimSpace(k)
		if k != "" {
			r.kinds[k] = struct{}{}
		}
	}
	return r
}

// Register adds a kind to the registry.
func (r *KindRegistry) Register(kind string) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return
	}
	r.mu.Lock()
	r.kinds[kind] = struct{}{}
	r.mu.Unlock()
}

// Known reports whether the kind is registered.
func (r *KindRegistry) Known(kind string) bool {
	r.mu.RLock()
	_, ok := r.kinds[kind]
	r.mu.RUnlock()
	return ok
}

// All returns the registered kinds in sorted order.
func (r *KindRegistry) All() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
