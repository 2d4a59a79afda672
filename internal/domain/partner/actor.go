package partner

import "github.com/google/uuid"

// Actor is the authenticated partner on whose behalf an operation runs.
// It is passed explicitly into every service call.
type Actor struct {
	PartnerID uuid.UUID
	Type      PartnerType
	Username  string
}

// ActorFromPartner builds an actor from a loaded partner
func ActorFromPartner(p *Partner) Actor {
	return Actor{PartnerID: p.ID, Type: p.Type, Username: p.Username}
}

func (a Actor) IsSystemAdmin() bool {
	return a.Type == PartnerTypeSystemAdmin
}

func (a Actor) Level() int {
	return a.Type.Level()
}
