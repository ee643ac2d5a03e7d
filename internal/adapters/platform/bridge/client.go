package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/bnema/steam-accounts-cli/internal/ports"
	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("bridge connection closed")

// ErrorCodeBridgeClosed is reported to the event handler when the sidecar
// connection drops while the client is still open.
const ErrorCodeBridgeClosed = -1

const (
	maxLineSize        = 10 * 1024 * 1024
	eventBufferSize    = 128
	guardAnswerTimeout = 10 * time.Second
)

type Option func(*Client)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client implements ports.PlatformClient over a JSON-RPC line protocol to a
// sidecar process holding the real platform session. Responses are matched
// to calls by id in the read loop; notifications are applied to the raw
// relationship map and dispatched to the event handler in order, on a
// separate goroutine so handlers never stall pending calls.
type Client struct {
	conn         net.Conn
	logger       logrus.FieldLogger
	guardTimeout time.Duration

	requestID atomic.Uint64
	pendingMu sync.Mutex
	pending   map[string]chan *envelope
	writeMu   sync.Mutex

	mu      sync.Mutex
	handler ports.PlatformEventHandler
	raw     map[domain.PeerID]domain.RelationshipKind

	events    chan *envelope
	closing   atomic.Bool
	closeOnce sync.Once
	readDone  chan struct{}
	done      chan struct{}
}

var _ ports.PlatformClient = (*Client)(nil)

// WithGuardAnswerTimeout bounds the write of a guard code back to the sidecar.
func WithGuardAnswerTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.guardTimeout = timeout
		}
	}
}

// Dial connects to the sidecar socket.
func Dial(ctx context.Context, socketPath string, opts ...Option) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to platform bridge %s: %w", socketPath, err)
	}
	return New(conn, opts...), nil
}

// New starts a client on an established connection.
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:         conn,
		logger:       logrus.StandardLogger(),
		guardTimeout: guardAnswerTimeout,
		pending:      make(map[string]chan *envelope),
		events:       make(chan *envelope, eventBufferSize),
		readDone:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "bridge")

	go c.readLoop()
	go c.dispatchLoop()

	return c
}

func (c *Client) SetEventHandler(handler ports.PlatformEventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Client) LogOn(ctx context.Context, details domain.LogOnDetails) error {
	return c.call(ctx, methodLogOn, logOnParams{
		AccountName:   details.AccountName,
		Password:      details.Password,
		TwoFactorCode: details.TwoFactorCode,
		DataDirectory: details.DataDir,
	}, nil)
}

func (c *Client) SetPresence(ctx context.Context, state domain.PresenceState) error {
	return c.call(ctx, methodSetPersona, personaParams{State: state}, nil)
}

func (c *Client) DeclareActivity(ctx context.Context, appID uint32) error {
	return c.call(ctx, methodGamesPlayed, gamesPlayedParams{AppIDs: []uint32{appID}}, nil)
}

func (c *Client) AddPeer(ctx context.Context, peer domain.PeerID) error {
	return c.call(ctx, methodAddFriend, peerParams{Peer: peer}, nil)
}

func (c *Client) SendMessage(ctx context.Context, peer domain.PeerID, text string) error {
	return c.call(ctx, methodChatMessage, chatMessageParams{Peer: peer, Text: text}, nil)
}

func (c *Client) LogOff(ctx context.Context) error {
	return c.call(ctx, methodLogOff, nil, nil)
}

func (c *Client) Relationships() map[domain.PeerID]domain.RelationshipKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw == nil {
		return nil
	}
	return maps.Clone(c.raw)
}

// Done is closed once the connection is gone and every queued event has been
// dispatched.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		if closeErr := c.conn.Close(); closeErr != nil {
			err = fmt.Errorf("close bridge connection: %w", closeErr)
		}
	})
	<-c.done
	return err
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	id := "req-" + strconv.FormatUint(c.requestID.Add(1), 10)

	respCh := make(chan *envelope, 1)
	c.pendingMu.Lock()
	if c.pending == nil {
		c.pendingMu.Unlock()
		return ErrClosed
	}
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		if c.pending != nil {
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	}()

	if err := c.write(ctx, rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case resp, ok := <-respCh:
		if !ok {
			return fmt.Errorf("%s: %w", method, ErrClosed)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) notify(ctx context.Context, method string, params any) error {
	return c.write(ctx, rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Client) write(ctx context.Context, req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	if _, err := c.conn.Write(data); err != nil {
		if c.closing.Load() {
			return ErrClosed
		}
		return fmt.Errorf("send request: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	defer close(c.events)
	defer c.failPending()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		var msg envelope
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed bridge message")
			continue
		}

		if msg.ID != "" && msg.Method == "" {
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				ch <- &msg
			}
			c.pendingMu.Unlock()
			continue
		}

		if msg.Method != "" {
			c.events <- &msg
		}
	}

	if c.closing.Load() {
		return
	}

	err := scanner.Err()
	c.logger.WithError(err).Error("Platform bridge connection lost")
	message := ErrClosed.Error()
	if err != nil {
		message = err.Error()
	}
	params, _ := json.Marshal(errorParams{Code: ErrorCodeBridgeClosed, Message: message})
	c.events <- &envelope{Method: notifyError, Params: params}
}

// failPending releases callers still waiting on a response.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pending = nil
}

func (c *Client) dispatchLoop() {
	defer close(c.done)
	for msg := range c.events {
		c.dispatch(msg)
	}
	<-c.readDone
}

func (c *Client) dispatch(msg *envelope) {
	logger := c.logger.WithField("notification", msg.Method)

	switch msg.Method {
	case notifyLoggedOn:
		if handler := c.eventHandler(); handler != nil {
			handler.HandleLoggedOn()
		}

	case notifyError:
		var params errorParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			logger.WithError(err).Warn("Malformed error notification")
			return
		}
		if handler := c.eventHandler(); handler != nil {
			handler.HandleError(&domain.PlatformError{Code: params.Code, Message: params.Message})
		}

	case notifyFriendRelationship:
		var params relationshipParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			logger.WithError(err).Warn("Malformed relationship notification")
			return
		}
		if params.Peer == "" {
			logger.Warn("Relationship notification without a peer")
			return
		}
		if !params.Kind.Valid() {
			logger.WithFields(logrus.Fields{"peer": params.Peer, "kind": params.Kind}).Warn("Unknown relationship kind")
			return
		}
		c.mu.Lock()
		if c.raw == nil {
			c.raw = make(map[domain.PeerID]domain.RelationshipKind)
		}
		c.raw[params.Peer] = params.Kind
		handler := c.handler
		c.mu.Unlock()

		if handler != nil {
			handler.HandleRelationship(params.Peer, params.Kind)
		}

	case notifyFriendsList:
		var params friendsListParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			logger.WithError(err).Warn("Malformed friends list notification")
			return
		}
		raw := make(map[domain.PeerID]domain.RelationshipKind, len(params.Relationships))
		for peer, kind := range params.Relationships {
			if !kind.Valid() {
				logger.WithFields(logrus.Fields{"peer": peer, "kind": kind}).Warn("Unknown relationship kind")
				continue
			}
			raw[peer] = kind
		}
		c.mu.Lock()
		c.raw = raw
		handler := c.handler
		c.mu.Unlock()

		logger.WithField("relationships", len(raw)).Debug("Replaced relationship snapshot")
		if handler != nil {
			handler.HandleRelationshipsChanged()
		}

	case notifySteamGuard:
		var params steamGuardParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			logger.WithError(err).Warn("Malformed guard notification")
			return
		}
		handler := c.eventHandler()
		if handler == nil {
			return
		}
		handler.HandleGuardRequested(func(code string) {
			ctx, cancel := context.WithTimeout(context.Background(), c.guardTimeout)
			defer cancel()
			err := c.notify(ctx, notifySteamGuardCode, steamGuardCodeParams{ID: params.ID, Code: code})
			if err != nil {
				logger.WithError(err).Warn("Failed to answer guard challenge")
			}
		})

	default:
		logger.Debug("Ignoring unknown notification")
	}
}

func (c *Client) eventHandler() ports.PlatformEventHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}
