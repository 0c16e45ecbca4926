package domain

// SubjectType differentiates customer and staff tokens.
type SubjectType string

const (
	SubjectTypeCustomer SubjectType = "CUSTOMER"
	SubjectTypeStaff    SubjectType = "STAFF"
)

// StaffRole enumerates shop operator roles.
type StaffRole string

const (
	StaffRoleTechnician StaffRole = "TECHNICIAN"
	StaffRoleAdmin      StaffRole = "ADMIN"
)
