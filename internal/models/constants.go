package models

// Capabilities recognized by the booking core.
const (
	RoleAdministrator = "Administrator"
	RoleCabinOwner    = "CabinOwner"
	RoleCustomer      = "Customer"
)

const (
	// DefaultInvoiceExpiryDays срок оплаты счета после окончания брони
	DefaultInvoiceExpiryDays = 30

	// DefaultEditLockDays за сколько дней до заезда бронь замораживается
	DefaultEditLockDays = 1

	// DefaultLockTTL время жизни блокировки домика в секундах
	DefaultLockTTL = 10

	// RateLimitBurst запас запросов по умолчанию
	RateLimitBurst = 5
)

// Actor is the authenticated caller as seen by the core.
type Actor struct {
	PersonID int64    `json:"person_id"`
	Roles    []string `json:"roles"`
}
