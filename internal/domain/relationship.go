package domain

import "time"

type PeerID string

type RelationshipKind string

const (
	RelationshipNone            RelationshipKind = "none"
	RelationshipIncomingRequest RelationshipKind = "incoming_request"
	RelationshipFriend          RelationshipKind = "friend"
)

func (k RelationshipKind) Valid() bool {
	switch k {
	case RelationshipNone, RelationshipIncomingRequest, RelationshipFriend:
		return true
	default:
		return false
	}
}

type PendingRequest struct {
	Peer            PeerID
	FirstObservedAt time.Time
}
