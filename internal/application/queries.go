package application

import "github.com/bnema/steam-accounts-cli/internal/domain"

type Status struct {
	Connected       bool                   `json:"connected"`
	Ready           bool                   `json:"ready"`
	State           domain.ConnectionState `json:"state"`
	FriendsCount    int                    `json:"friendsCount"`
	PendingRequests int                    `json:"pendingRequests"`
}

type AcceptFailure struct {
	Peer domain.PeerID
	Err  error
}

type AcceptResult struct {
	Accepted int
	Failed   []AcceptFailure
}

func (r AcceptResult) FailedPeers() []domain.PeerID {
	peers := make([]domain.PeerID, 0, len(r.Failed))
	for _, failure := range r.Failed {
		peers = append(peers, failure.Peer)
	}
	return peers
}
