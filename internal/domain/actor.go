package domain

// Role is the marketplace role resolved by authentication.
type Role string

const (
	RoleConsumer         Role = "consumer"
	RoleVehicleOwner     Role = "vehicle_owner"
	RoleMaterialSupplier Role = "material_supplier"
	RoleAdmin            Role = "admin"
	// RoleService marks callers authenticated with service-to-service OIDC tokens.
	RoleService Role = "service"
)

// Actor is the caller on whose behalf an operation runs. PartnerID is set only for partner accounts.
type Actor struct {
	ID        string
	Role      Role
	PartnerID string
}

// IsPartner reports whether the actor acts for a partner business.
func (a Actor) IsPartner() bool {
	return a.PartnerID != "" && (a.Role == RoleVehicleOwner || a.Role == RoleMaterialSupplier)
}
