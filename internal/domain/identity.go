package domain

import "time"

// Identity is an authentication principal owned by the external identity
// provider. Exactly one identity exists per email; the linker always
// searches before creating to preserve that invariant.
type Identity struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// RoleOwner is the role granted to the tenant contact when their
// identity is created through the invite flow.
const RoleOwner = "owner"

// InviteMetadata is attached to a newly invited identity so the rest of
// the platform can associate it with its tenant.
type InviteMetadata struct {
	Role     string
	Name     string
	TenantID string
}

// Profile is the minimal local record provisioned alongside a brand-new
// identity so it is immediately usable by the rest of the platform.
type Profile struct {
	IdentityID  string
	Role        string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}
