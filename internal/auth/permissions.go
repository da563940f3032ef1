// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package auth

// Capability names a back-office area gated by role.
type Capability string

// Named capabilities.
const (
	CapabilityPOS       Capability = "pos"
	CapabilityQuotes    Capability = "quotes"
	CapabilityInventory Capability = "inventory"
	CapabilitySettings  Capability = "settings"
	CapabilityReports   Capability = "reports"
)

// AllCapabilities lists every named capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityPOS,
		CapabilityQuotes,
		CapabilityInventory,
		CapabilitySettings,
		CapabilityReports,
	}
}

// PermissionSet is the capability map attached to a user.
type PermissionSet struct {
	All       bool `json:"all"`
	POS       bool `json:"pos"`
	Quotes    bool `json:"quotes"`
	Inventory bool `json:"inventory"`
	Settings  bool `json:"settings"`
	Reports   bool `json:"reports"`
}

// Has reports whether the set grants c, either through the blanket flag or
// the individual capability.
func (p PermissionSet) Has(c Capability) bool {
	if p.All {
		return true
	}
	switch c {
	case CapabilityPOS:
		return p.POS
	case CapabilityQuotes:
		return p.Quotes
	case CapabilityInventory:
		return p.Inventory
	case CapabilitySettings:
		return p.Settings
	case CapabilityReports:
		return p.Reports
	default:
		return false
	}
}

// PermissionsFor maps a role to its capabilities. Unknown and empty roles
// get nothing.
func PermissionsFor(role string) PermissionSet {
	switch role {
	case RoleAdmin:
		return PermissionSet{
			All:       true,
			POS:       true,
			Quotes:    true,
			Inventory: true,
			Settings:  true,
			Reports:   true,
		}
	case RoleSeller:
		return PermissionSet{
			POS:       true,
			Quotes:    true,
			Inventory: true,
		}
	default:
		return PermissionSet{}
	}
}
