package application

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/bnema/steam-accounts-cli/internal/ports"
	"github.com/sirupsen/logrus"
)

type RelationshipSource interface {
	Relationships() map[domain.PeerID]domain.RelationshipKind
}

type SessionGuard interface {
	Connected() bool
}

// AcceptFunc acts on a single pending request.
type AcceptFunc func(ctx context.Context, peer domain.PeerID) error

// Reconciler keeps the confirmed-friends cache and the pending-requests list
// derived from the platform client's raw relationship map and from
// relationship events. The raw map is authoritative; events only patch the
// caches between scans.
type Reconciler struct {
	source  RelationshipSource
	session SessionGuard
	clock   ports.Clock
	logger  logrus.FieldLogger

	mu      sync.RWMutex
	friends map[domain.PeerID]time.Time
	pending []domain.PendingRequest
	stale   bool

	drainMu sync.Mutex
}

func NewReconciler(source RelationshipSource, session SessionGuard, clock ports.Clock, logger logrus.FieldLogger) *Reconciler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Reconciler{
		source:  source,
		session: session,
		clock:   clock,
		logger:  logger.WithField("component", "reconciler"),
		friends: map[domain.PeerID]time.Time{},
		stale:   true,
	}
}

// ReconcileFromSnapshot rebuilds the friends cache from the raw map. Pending
// entries whose raw kind is known and no longer an incoming request are
// dropped as stale.
func (r *Reconciler) ReconcileFromSnapshot() {
	raw := r.source.Relationships()
	if raw == nil {
		return
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	friends := make(map[domain.PeerID]time.Time, len(raw))
	for peer, kind := range raw {
		if kind != domain.RelationshipFriend {
			continue
		}
		observedAt, ok := r.friends[peer]
		if !ok {
			observedAt = now
		}
		friends[peer] = observedAt
	}
	r.friends = friends

	r.pending = slices.DeleteFunc(r.pending, func(entry domain.PendingRequest) bool {
		kind, ok := raw[entry.Peer]
		return ok && kind != domain.RelationshipIncomingRequest
	})
	r.stale = false

	r.logger.WithFields(logrus.Fields{
		"friends": len(r.friends),
		"pending": len(r.pending),
	}).Debug("Reconciled relationship snapshot")
}

// ReconcilePendingRequests adds every incoming request of the raw map that is
// not tracked yet. It never removes entries. It returns the number added.
func (r *Reconciler) ReconcilePendingRequests() int {
	raw := r.source.Relationships()
	if raw == nil {
		return 0
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, peer := range slices.Sorted(maps.Keys(raw)) {
		if raw[peer] != domain.RelationshipIncomingRequest {
			continue
		}
		if r.addPendingLocked(peer, now) {
			added++
		}
	}

	if added > 0 {
		r.logger.WithField("added", added).Info("Recovered pending friend requests from snapshot")
	}

	return added
}

func (r *Reconciler) OnRelationshipChanged(peer domain.PeerID, kind domain.RelationshipKind) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case domain.RelationshipIncomingRequest:
		delete(r.friends, peer)
		r.addPendingLocked(peer, now)
	case domain.RelationshipFriend:
		r.friends[peer] = now
		r.removePendingLocked(peer)
	case domain.RelationshipNone:
		delete(r.friends, peer)
		r.removePendingLocked(peer)
	default:
		r.logger.WithFields(logrus.Fields{
			"peer": peer,
			"kind": kind,
		}).Warn("Ignoring unknown relationship kind")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"peer": peer,
		"kind": kind,
	}).Debug("Relationship changed")
}

// DrainPendingAndAccept runs accept once for every pending request and
// removes all of them, whatever the outcome. Requests arriving for other
// peers while the drain runs stay pending for the next drain.
func (r *Reconciler) DrainPendingAndAccept(ctx context.Context, accept AcceptFunc) AcceptResult {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	r.ReconcilePendingRequests()

	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	result := AcceptResult{Failed: []AcceptFailure{}}
	drained := make(map[domain.PeerID]struct{}, len(batch))
	for _, entry := range batch {
		drained[entry.Peer] = struct{}{}

		if err := accept(ctx, entry.Peer); err != nil {
			r.logger.WithError(err).WithField("peer", entry.Peer).Warn("Failed to accept friend request")
			result.Failed = append(result.Failed, AcceptFailure{Peer: entry.Peer, Err: err})
			continue
		}
		result.Accepted++
	}

	r.mu.Lock()
	r.pending = slices.DeleteFunc(r.pending, func(entry domain.PendingRequest) bool {
		_, ok := drained[entry.Peer]
		return ok
	})
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"accepted": result.Accepted,
		"failed":   len(result.Failed),
	}).Info("Drained pending friend requests")

	return result
}

// IsFriend checks the cache first and falls back to the raw map, caching a
// hit.
func (r *Reconciler) IsFriend(peer domain.PeerID) bool {
	r.mu.RLock()
	_, ok := r.friends[peer]
	r.mu.RUnlock()
	if ok {
		return true
	}

	raw := r.source.Relationships()
	if raw[peer] != domain.RelationshipFriend {
		return false
	}

	r.mu.Lock()
	if _, ok := r.friends[peer]; !ok {
		r.friends[peer] = r.clock.Now()
	}
	r.mu.Unlock()

	return true
}

// MarkStale flags the caches as untrustworthy without clearing them.
func (r *Reconciler) MarkStale() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}

func (r *Reconciler) Stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stale
}

// RefreshIfStale rescans the raw map when the caches are stale and a session
// is established.
func (r *Reconciler) RefreshIfStale() {
	if !r.Stale() || r.session == nil || !r.session.Connected() {
		return
	}

	r.ReconcileFromSnapshot()
	r.ReconcilePendingRequests()
}

func (r *Reconciler) Counts() (friends int, pending int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.friends), len(r.pending)
}

func (r *Reconciler) Pending() []domain.PendingRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.pending)
}

func (r *Reconciler) Friends() []domain.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.friends))
}

func (r *Reconciler) addPendingLocked(peer domain.PeerID, now time.Time) bool {
	if r.pendingIndexLocked(peer) >= 0 {
		return false
	}
	r.pending = append(r.pending, domain.PendingRequest{Peer: peer, FirstObservedAt: now})
	return true
}

func (r *Reconciler) removePendingLocked(peer domain.PeerID) {
	if i := r.pendingIndexLocked(peer); i >= 0 {
		r.pending = slices.Delete(r.pending, i, i+1)
	}
}

func (r *Reconciler) pendingIndexLocked(peer domain.PeerID) int {
	return slices.IndexFunc(r.pending, func(entry domain.PendingRequest) bool {
		return entry.Peer == peer
	})
}
