package httpapi

import (
	"errors"
	"net/http"

	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
)

const (
	codeBadRequest      = "bad_request"
	codeNotConnected    = "not_connected"
	codeNotAFriend      = "not_a_friend"
	codeLoginInProgress = "login_in_progress"
	codeUpstream        = "upstream_error"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type acceptFailure struct {
	Peer  domain.PeerID `json:"peer"`
	Error string        `json:"error"`
}

type acceptResponse struct {
	Accepted int             `json:"accepted"`
	Errors   []domain.PeerID `json:"errors"`
	Failures []acceptFailure `json:"failures"`
}

type friendResponse struct {
	Peer   domain.PeerID `json:"peer"`
	Friend bool          `json:"friend"`
}

type messageRequest struct {
	Peer domain.PeerID `json:"peer"`
	Text string        `json:"text"`
}

func toAcceptResponse(result application.AcceptResult) acceptResponse {
	resp := acceptResponse{
		Accepted: result.Accepted,
		Errors:   make([]domain.PeerID, 0, len(result.Failed)),
		Failures: make([]acceptFailure, 0, len(result.Failed)),
	}
	for _, failure := range result.Failed {
		message := ""
		if failure.Err != nil {
			message = failure.Err.Error()
		}
		resp.Errors = append(resp.Errors, failure.Peer)
		resp.Failures = append(resp.Failures, acceptFailure{Peer: failure.Peer, Error: message})
	}
	return resp
}

func fromAcceptResponse(resp acceptResponse) application.AcceptResult {
	result := application.AcceptResult{
		Accepted: resp.Accepted,
		Failed:   make([]application.AcceptFailure, 0, len(resp.Failures)),
	}
	for _, failure := range resp.Failures {
		result.Failed = append(result.Failed, application.AcceptFailure{
			Peer: failure.Peer,
			Err:  errors.New(failure.Error),
		})
	}
	return result
}

// errorStatus maps service errors to a status code and a stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusServiceUnavailable, codeNotConnected
	case errors.Is(err, domain.ErrNotAFriend):
		return http.StatusForbidden, codeNotAFriend
	case errors.Is(err, domain.ErrLoginInProgress):
		return http.StatusConflict, codeLoginInProgress
	default:
		return http.StatusBadGateway, codeUpstream
	}
}

func sentinelForCode(code string) error {
	switch code {
	case codeNotConnected:
		return domain.ErrNotConnected
	case codeNotAFriend:
		return domain.ErrNotAFriend
	case codeLoginInProgress:
		return domain.ErrLoginInProgress
	default:
		return nil
	}
}
