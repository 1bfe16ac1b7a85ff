// Package policy holds the booking authorization rules as an explicit table evaluated
// against capability and ownership predicates.
package policy

import (
	"fmt"

	"cabinres/internal/domain"
	"cabinres/internal/models"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionCancel Action = "cancel"
	ActionView   Action = "view"
	ActionReport Action = "report"
	ActionSearch Action = "search"
	ActionSettle Action = "settle"
)

// Relation is an ownership link between the actor and the booking under consideration.
type Relation int

const (
	BookingOwner Relation = iota + 1
	CabinOwner
)

// RoleRule grants a role an action. Bypass skips ownership checks entirely;
// otherwise the actor must satisfy at least one relation in AnyOf, or none is needed
// when AnyOf is empty.
type RoleRule struct {
	Bypass bool
	AnyOf  []Relation
}

// ActionRule lists the roles allowed to perform an action. With RequireAll every
// recognized role the actor holds must be satisfied; otherwise one is enough.
type ActionRule struct {
	RequireAll bool
	Roles      map[string]RoleRule
}

type Table map[Action]ActionRule

// DefaultTable mirrors the reservation rules of the platform.
func DefaultTable() Table {
	owners := []Relation{BookingOwner, CabinOwner}
	return Table{
		ActionCreate: {Roles: map[string]RoleRule{
			models.RoleAdministrator: {Bypass: true},
			models.RoleCabinOwner:    {},
			models.RoleCustomer:      {},
		}},
		ActionModify: {RequireAll: true, Roles: map[string]RoleRule{
			models.RoleAdministrator: {Bypass: true},
			models.RoleCabinOwner:    {AnyOf: owners},
			models.RoleCustomer:      {AnyOf: []Relation{BookingOwner}},
		}},
		ActionCancel: {Roles: map[string]RoleRule{
			models.RoleAdministrator: {Bypass: true},
			models.RoleCabinOwner:    {AnyOf: owners},
			models.RoleCustomer:      {AnyOf: owners},
		}},
		ActionView: {Roles: map[string]RoleRule{
			models.RoleAdministrator: {Bypass: true},
			models.RoleCabinOwner:    {AnyOf: owners},
			models.RoleCustomer:      {AnyOf: owners},
		}},
		ActionReport: {Roles: map[string]RoleRule{
			models.RoleAdministrator: {Bypass: true},
			models.RoleCabinOwner:    {},
		}},
		ActionSearch: {Roles: map[string]RoleRule{
			models.RoleAdministrator: {Bypass: true},
			models.RoleCabinOwner:    {},
		}},
		ActionSettle: {Roles: map[string]RoleRule{
			models.RoleAdministrator: {Bypass: true},
			models.RoleCabinOwner:    {AnyOf: []Relation{CabinOwner}},
		}},
	}
}

// Subject is what the action is performed on. Zero fields mean "no such relation".
type Subject struct {
	BookingPersonID int64
	Cabin           *models.Cabin
}

// Decision is the outcome of a permitted action. Elevated is set when a bypass rule matched.
type Decision struct {
	Elevated bool
}

type Policy struct {
	auth  domain.Authorizer
	table Table
}

func New(auth domain.Authorizer, table Table) *Policy {
	if auth == nil {
		auth = RoleAuthorizer{}
	}
	if table == nil {
		table = DefaultTable()
	}
	return &Policy{auth: auth, table: table}
}

// Authorize evaluates action for actor against subject.
func (p *Policy) Authorize(actor models.Actor, action Action, subject Subject) (Decision, error) {
	rule, ok := p.table[action]
	if !ok {
		return Decision{}, fmt.Errorf("no rule for %s: %w", action, domain.ErrUnauthorized)
	}

	matched := 0
	satisfied := 0
	for role, rr := range rule.Roles {
		if !p.auth.HasCapability(actor, role) {
			continue
		}
		if rr.Bypass {
			return Decision{Elevated: true}, nil
		}
		matched++
		if p.satisfies(actor, rr, subject) {
			satisfied++
		}
	}

	switch {
	case matched == 0:
		return Decision{}, fmt.Errorf("%s requires a recognized capability: %w", action, domain.ErrUnauthorized)
	case rule.RequireAll && satisfied < matched:
		return Decision{}, fmt.Errorf("%s: ownership check failed: %w", action, domain.ErrUnauthorized)
	case satisfied == 0:
		return Decision{}, fmt.Errorf("%s: ownership check failed: %w", action, domain.ErrUnauthorized)
	}
	return Decision{}, nil
}

// IsElevated reports whether actor holds a bypass capability for action.
func (p *Policy) IsElevated(actor models.Actor, action Action) bool {
	for role, rr := range p.table[action].Roles {
		if rr.Bypass && p.auth.HasCapability(actor, role) {
			return true
		}
	}
	return false
}

func (p *Policy) satisfies(actor models.Actor, rr RoleRule, subject Subject) bool {
	if len(rr.AnyOf) == 0 {
		return true
	}
	for _, rel := range rr.AnyOf {
		switch rel {
		case BookingOwner:
			if subject.BookingPersonID != 0 && p.auth.OwnsPerson(actor, subject.BookingPersonID) {
				return true
			}
		case CabinOwner:
			if subject.Cabin != nil && p.auth.OwnsCabin(actor, subject.Cabin) {
				return true
			}
		}
	}
	return false
}
