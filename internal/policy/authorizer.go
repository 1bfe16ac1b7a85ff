package policy

import (
	"strings"

	"cabinres/internal/models"
)

// RoleAuthorizer answers capability questions from the roles carried by the actor and
// ownership questions from its person id.
type RoleAuthorizer struct{}

func (RoleAuthorizer) HasCapability(actor models.Actor, name string) bool {
	for _, r := range actor.Roles {
		if strings.EqualFold(strings.TrimSpace(r), name) {
			return true
		}
	}
	return false
}

func (RoleAuthorizer) OwnsPerson(actor models.Actor, personID int64) bool {
	return actor.PersonID != 0 && actor.PersonID == personID
}

func (RoleAuthorizer) OwnsCabin(actor models.Actor, cabin *models.Cabin) bool {
	return cabin != nil && actor.PersonID != 0 && cabin.OwnerID == actor.PersonID
}
