package ports

import (
	"context"

	"github.com/bnema/steam-accounts-cli/internal/domain"
)

// PlatformClient is the platform session client. It owns the wire protocol,
// encryption and the raw relationship map; logon outcomes are reported
// asynchronously through the registered PlatformEventHandler.
type PlatformClient interface {
	SetEventHandler(handler PlatformEventHandler)
	LogOn(ctx context.Context, details domain.LogOnDetails) error
	SetPresence(ctx context.Context, state domain.PresenceState) error
	DeclareActivity(ctx context.Context, appID uint32) error
	AddPeer(ctx context.Context, peer domain.PeerID) error
	SendMessage(ctx context.Context, peer domain.PeerID, text string) error
	LogOff(ctx context.Context) error
	// Relationships returns a copy of the raw relationship map, or nil when
	// the client has not received one yet.
	Relationships() map[domain.PeerID]domain.RelationshipKind
}

// GuardResponder answers an interactive second-factor challenge.
type GuardResponder func(code string)

type PlatformEventHandler interface {
	HandleLoggedOn()
	HandleError(err *domain.PlatformError)
	HandleRelationship(peer domain.PeerID, kind domain.RelationshipKind)
	HandleRelationshipsChanged()
	HandleGuardRequested(respond GuardResponder)
}
