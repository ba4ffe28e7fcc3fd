// Package content defines the path-shaped addresses that identify nodes in
// the subject/type/content hierarchy, and the key layout for stored documents.
package content

import (
	"fmt"
	"strings"
)

// Address identifies a node in the content tree by path:
// /subjects/{s}, /subjects/{s}/types/{t}, or
// /subjects/{s}/types/{t}/contents/{c}. It is used as a lookup key across
// proposals, watch items, and activity records, never as an ownership pointer.
type Address string

var segmentLabels = []string{"subjects", "types", "contents"}

// ParseAddress validates a raw path and returns it as an Address.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("target path is empty")
	}
	if !strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("target path %q must start with /", trimmed)
	}
	if strings.HasSuffix(trimmed, "/") {
		return "", fmt.Errorf("target path %q must not end with /", trimmed)
	}

	parts := strings.Split(strings.TrimPrefix(trimmed, "/"), "/")
	if len(parts)%2 != 0 || len(parts) > 2*len(segmentLabels) {
		return "", fmt.Errorf("target path %q has invalid depth", trimmed)
	}
	for i := 0; i < len(parts); i += 2 {
		label := segmentLabels[i/2]
		if parts[i] != label {
			return "", fmt.Errorf("target path %q: expected segment %q, got %q", trimmed, label, parts[i])
		}
		if parts[i+1] == "" {
			return "", fmt.Errorf("target path %q: empty %s id", trimmed, label)
		}
	}
	return Address(trimmed), nil
}

func (a Address) String() string {
	return string(a)
}

// Ancestors returns the proper ancestors of the address, nearest first.
// A content address yields its type and subject; a subject yields nothing.
func (a Address) Ancestors() []Address {
	parts := strings.Split(strings.TrimPrefix(string(a), "/"), "/")
	var ancestors []Address
	for depth := len(parts)/2 - 1; depth >= 1; depth-- {
		ancestors = append(ancestors, Address("/"+strings.Join(parts[:depth*2], "/")))
	}
	return ancestors
}

// Covers reports whether other equals the address or lives underneath it in
// the hierarchy. Matching is per path segment, so /subjects/1 does not cover
// /subjects/10.
func (a Address) Covers(other Address) bool {
	if a == other {
		return true
	}
	return strings.HasPrefix(string(other), string(a)+"/")
}

// Key returns the address encoded as a single path segment, for use as a
// component of a stored document key.
func (a Address) Key() string {
	return strings.ReplaceAll(strings.TrimPrefix(string(a), "/"), "/", "~")
}

// AddressFromKey reverses Key.
func AddressFromKey(key string) Address {
	return Address("/" + strings.ReplaceAll(key, "~", "/"))
}
