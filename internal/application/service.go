package application

import (
	"context"
	"time"

	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/bnema/steam-accounts-cli/internal/ports"
	"github.com/sirupsen/logrus"
)

// Service is the account operations facade over the session manager and the
// relationship reconciler. It is also the event handler registered with the
// platform client.
type Service struct {
	client     ports.PlatformClient
	session    *SessionManager
	reconciler *Reconciler
	logger     logrus.FieldLogger
	rescan     time.Duration
}

var _ ports.PlatformEventHandler = (*Service)(nil)

func NewService(client ports.PlatformClient, codes ports.GuardCodeProvider, clock ports.Clock, logger logrus.FieldLogger, cfg SessionConfig) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cfg.applyDefaults()

	s := &Service{
		client: client,
		logger: logger,
		rescan: cfg.RescanInterval,
	}
	s.session = newSessionManager(client, codes, cfg, logger, sessionHooks{
		ready: s.onSessionEstablished,
		lost:  s.onSessionLost,
	})
	s.reconciler = NewReconciler(client, s.session, clock, logger)

	client.SetEventHandler(s)

	return s
}

func (s *Service) Session() *SessionManager {
	return s.session
}

func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

func (s *Service) Login(ctx context.Context, explicitCode string) error {
	return s.session.Login(ctx, explicitCode)
}

func (s *Service) Logout(ctx context.Context) error {
	return s.session.Logout(ctx)
}

func (s *Service) GetStatus() Status {
	state := s.session.State()
	friends, pending := s.reconciler.Counts()

	return Status{
		Connected:       state.Established(),
		Ready:           state == domain.StateReady,
		State:           state,
		FriendsCount:    friends,
		PendingRequests: pending,
	}
}

// AcceptAllPending accepts every pending friend request. Without a session it
// is a no-op; individual failures are reported in the result, not as an
// error.
func (s *Service) AcceptAllPending(ctx context.Context) (AcceptResult, error) {
	if !s.session.Connected() {
		return AcceptResult{Failed: []AcceptFailure{}}, nil
	}

	s.reconciler.RefreshIfStale()
	return s.reconciler.DrainPendingAndAccept(ctx, s.client.AddPeer), nil
}

func (s *Service) IsFriend(_ context.Context, peer domain.PeerID) bool {
	s.reconciler.RefreshIfStale()
	return s.reconciler.IsFriend(peer)
}

// SendMessage sends text to a friend. Errors from the platform client are
// returned as is.
func (s *Service) SendMessage(ctx context.Context, peer domain.PeerID, text string) error {
	if !s.session.Connected() {
		return domain.ErrNotConnected
	}
	if !s.IsFriend(ctx, peer) {
		return domain.ErrNotAFriend
	}

	return s.client.SendMessage(ctx, peer, text)
}

// Run rescans the raw relationship map for pending requests every rescan
// interval while a session is established. It returns when ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.session.Connected() {
				continue
			}
			s.reconciler.RefreshIfStale()
			s.reconciler.ReconcilePendingRequests()
		}
	}
}

func (s *Service) HandleLoggedOn() {
	s.session.handleLoggedOn()
}

func (s *Service) HandleError(err *domain.PlatformError) {
	s.session.handleError(err)
}

func (s *Service) HandleRelationship(peer domain.PeerID, kind domain.RelationshipKind) {
	s.reconciler.OnRelationshipChanged(peer, kind)
}

func (s *Service) HandleRelationshipsChanged() {
	s.reconciler.ReconcileFromSnapshot()
	s.reconciler.ReconcilePendingRequests()
}

func (s *Service) HandleGuardRequested(respond ports.GuardResponder) {
	s.session.handleGuardRequested(respond)
}

func (s *Service) onSessionEstablished() {
	s.reconciler.ReconcileFromSnapshot()
	s.reconciler.ReconcilePendingRequests()
}

func (s *Service) onSessionLost() {
	s.reconciler.MarkStale()
}
