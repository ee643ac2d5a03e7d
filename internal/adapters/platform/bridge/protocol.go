package bridge

import (
	"encoding/json"
	"strconv"

	"github.com/bnema/steam-accounts-cli/internal/domain"
)

// Methods called on the sidecar.
const (
	methodLogOn       = "logOn"
	methodSetPersona  = "setPersona"
	methodGamesPlayed = "gamesPlayed"
	methodAddFriend   = "addFriend"
	methodChatMessage = "chatMessage"
	methodLogOff      = "logOff"
)

// Notifications pushed by the sidecar, and the guard answer pushed back.
const (
	notifyLoggedOn           = "loggedOn"
	notifyError              = "error"
	notifyFriendRelationship = "friendRelationship"
	notifyFriendsList        = "friendsList"
	notifySteamGuard         = "steamGuard"
	notifySteamGuardCode     = "steamGuardCode"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// envelope is any inbound line: a response carries an id, a notification a
// method.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error response from the sidecar.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return "bridge rpc error " + strconv.Itoa(e.Code) + ": " + e.Message
}

type logOnParams struct {
	AccountName   string `json:"accountName"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
	DataDirectory string `json:"dataDirectory,omitempty"`
}

type personaParams struct {
	State domain.PresenceState `json:"state"`
}

type gamesPlayedParams struct {
	AppIDs []uint32 `json:"appIds"`
}

type peerParams struct {
	Peer domain.PeerID `json:"peer"`
}

type chatMessageParams struct {
	Peer domain.PeerID `json:"peer"`
	Text string        `json:"text"`
}

type errorParams struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type relationshipParams struct {
	Peer domain.PeerID           `json:"peer"`
	Kind domain.RelationshipKind `json:"kind"`
}

type friendsListParams struct {
	Relationships map[domain.PeerID]domain.RelationshipKind `json:"relationships"`
}

type steamGuardParams struct {
	ID string `json:"id"`
}

type steamGuardCodeParams struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}
