package domain

// Material is a construction material offered by a supplier. Prices are stored in minor currency units.
type Material struct {
	ID                string
	Name              string
	Category          string
	Unit              string
	PricePerUnit      int64
	AvailableQuantity int
	IsAvailable       bool
	SupplierID        string
}

// VehicleStatus describes whether a vehicle is offered for rental.
type VehicleStatus string

const (
	VehicleStatusActive      VehicleStatus = "active"
	VehicleStatusInactive    VehicleStatus = "inactive"
	VehicleStatusMaintenance VehicleStatus = "maintenance"
)

// VehicleAvailability groups the owner-controlled availability switch.
type VehicleAvailability struct {
	IsAvailable bool
}

// Vehicle is a heavy vehicle listed for rental by its owner.
type Vehicle struct {
	ID           string
	Name         string
	Category     string
	HourlyRate   int64
	DailyRate    int64
	Availability VehicleAvailability
	Status       VehicleStatus
	OwnerID      string
}

// PartnerType identifies the kind of business a partner runs.
type PartnerType string

const (
	PartnerTypeVehicleOwner     PartnerType = "vehicle_owner"
	PartnerTypeMaterialSupplier PartnerType = "material_supplier"
)

// PartnerVerificationStatus tracks partner onboarding review.
type PartnerVerificationStatus string

const (
	PartnerVerificationPending  PartnerVerificationStatus = "pending"
	PartnerVerificationApproved PartnerVerificationStatus = "approved"
	PartnerVerificationRejected PartnerVerificationStatus = "rejected"
)

// Partner is a verified vehicle owner or material supplier that fulfils service requests.
type Partner struct {
	ID                 string
	Type               PartnerType
	BusinessName       string
	VerificationStatus PartnerVerificationStatus
	Contact            Contact
}

// CanFulfil reports whether the partner is approved and runs the business matching kind.
func (p Partner) CanFulfil(kind ServiceRequestKind) bool {
	if p.VerificationStatus != PartnerVerificationApproved {
		return false
	}
	switch kind {
	case ServiceRequestKindMaterial:
		return p.Type == PartnerTypeMaterialSupplier
	case ServiceRequestKindVehicle:
		return p.Type == PartnerTypeVehicleOwner
	default:
		return false
	}
}
