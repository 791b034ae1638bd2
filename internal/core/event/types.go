package event

import "github.com/daralet-ac/ACE-sub005/internal/guid"

// ObjectCreated tells a player's client that Target came into its knowledge.
type ObjectCreated struct {
	Observer guid.Guid
	Target   guid.Guid
}

// ObjectDestroyed tells a player's client that Target no longer exists to it.
type ObjectDestroyed struct {
	Observer guid.Guid
	Target   guid.Guid
}

// AuditCompleted is emitted after every object maintenance audit pass.
type AuditCompleted struct {
	Holders int
	Repairs int
}
