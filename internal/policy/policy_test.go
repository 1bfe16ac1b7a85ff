package policy

import (
	"testing"

	"cabinres/internal/domain"
	"cabinres/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actor(id int64, roles ...string) models.Actor {
	return models.Actor{PersonID: id, Roles: roles}
}

func TestRoleAuthorizer(t *testing.T) {
	a := RoleAuthorizer{}
	cabin := &models.Cabin{ID: 1, OwnerID: 5}

	assert.True(t, a.HasCapability(actor(1, " customer "), models.RoleCustomer))
	assert.False(t, a.HasCapability(actor(1, "Guest"), models.RoleCustomer))
	assert.True(t, a.OwnsPerson(actor(5), 5))
	assert.False(t, a.OwnsPerson(actor(0), 0))
	assert.True(t, a.OwnsCabin(actor(5), cabin))
	assert.False(t, a.OwnsCabin(actor(6), cabin))
	assert.False(t, a.OwnsCabin(actor(5), nil))
}

func TestAuthorize(t *testing.T) {
	p := New(nil, nil)
	cabin := &models.Cabin{ID: 1, OwnerID: 20}
	ownBooking := Subject{BookingPersonID: 10, Cabin: cabin}

	tests := []struct {
		name     string
		actor    models.Actor
		action   Action
		subject  Subject
		allowed  bool
		elevated bool
	}{
		{"AdminModifiesAny", actor(99, models.RoleAdministrator), ActionModify, ownBooking, true, true},
		{"CustomerModifiesOwn", actor(10, models.RoleCustomer), ActionModify, ownBooking, true, false},
		{"CustomerModifiesForeign", actor(11, models.RoleCustomer), ActionModify, ownBooking, false, false},
		{"CustomerOwningCabinCannotModify", actor(20, models.RoleCustomer), ActionModify, ownBooking, false, false},
		{"CabinOwnerModifiesOwnCabin", actor(20, models.RoleCabinOwner), ActionModify, ownBooking, true, false},
		{"CabinOwnerModifiesOwnBooking", actor(10, models.RoleCabinOwner), ActionModify, ownBooking, true, false},
		{"CabinOwnerModifiesForeign", actor(21, models.RoleCabinOwner), ActionModify, ownBooking, false, false},
		{"BothRolesNeedBothChecks", actor(20, models.RoleCabinOwner, models.RoleCustomer), ActionModify, ownBooking, false, false},
		{"NoRoleModify", actor(10), ActionModify, ownBooking, false, false},
		{"CustomerCancelsOwn", actor(10, models.RoleCustomer), ActionCancel, ownBooking, true, false},
		{"CabinOwnerCancels", actor(20, models.RoleCabinOwner), ActionCancel, ownBooking, true, false},
		{"StrangerCancels", actor(30, models.RoleCustomer), ActionCancel, ownBooking, false, false},
		{"CustomerCreates", actor(10, models.RoleCustomer), ActionCreate, Subject{}, true, false},
		{"AdminCreates", actor(1, models.RoleAdministrator), ActionCreate, Subject{}, true, true},
		{"NoRoleCreates", actor(10, "Guest"), ActionCreate, Subject{}, false, false},
		{"CustomerReport", actor(10, models.RoleCustomer), ActionReport, Subject{}, false, false},
		{"OwnerReport", actor(20, models.RoleCabinOwner), ActionReport, Subject{}, true, false},
		{"CustomerSearches", actor(10, models.RoleCustomer), ActionSearch, Subject{}, false, false},
		{"OwnerSearches", actor(20, models.RoleCabinOwner), ActionSearch, Subject{}, true, false},
		{"AdminSettles", actor(1, models.RoleAdministrator), ActionSettle, Subject{Cabin: cabin}, true, true},
		{"OwnerSettlesOwnCabin", actor(20, models.RoleCabinOwner), ActionSettle, Subject{Cabin: cabin}, true, false},
		{"OwnerSettlesForeignCabin", actor(21, models.RoleCabinOwner), ActionSettle, Subject{Cabin: cabin}, false, false},
		{"GuestSettlesOwnBooking", actor(10, models.RoleCustomer), ActionSettle, ownBooking, false, false},
		{"UnknownAction", actor(1, models.RoleAdministrator), Action("purge"), Subject{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := p.Authorize(tt.actor, tt.action, tt.subject)
			if !tt.allowed {
				require.ErrorIs(t, err, domain.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.elevated, d.Elevated)
		})
	}
}

func TestCustomTable(t *testing.T) {
	table := Table{
		ActionCancel: {Roles: map[string]RoleRule{
			models.RoleAdministrator: {Bypass: true},
		}},
	}
	p := New(RoleAuthorizer{}, table)

	_, err := p.Authorize(actor(10, models.RoleCustomer), ActionCancel, Subject{BookingPersonID: 10})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.True(t, p.IsElevated(actor(1, models.RoleAdministrator), ActionCancel))
	assert.False(t, p.IsElevated(actor(1, models.RoleCustomer), ActionCancel))
}
