package models

import (
	"fmt"

	"github.com/google/uuid"
)

type ActorKind string

const (
	ActorUser  ActorKind = "user"
	ActorGuest ActorKind = "guest"
)

// Actor identifies the owner of a cart or reservation: an authenticated
// user or an anonymous guest session, never both. The zero value is not a
// valid actor.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id"`
}

func UserActor(id uuid.UUID) Actor {
	return Actor{Kind: ActorUser, ID: id.String()}
}

func GuestActor(id string) Actor {
	return Actor{Kind: ActorGuest, ID: id}
}

// Key returns the storage key under which carts, reservations and cache
// entries for this actor are filed.
func (a Actor) Key() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.ID)
}

func (a Actor) IsZero() bool {
	return a.Kind == "" || a.ID == ""
}

func (a Actor) IsGuest() bool {
	return a.Kind == ActorGuest
}
