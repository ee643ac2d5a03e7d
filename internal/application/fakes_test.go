package application

import (
	"context"
	"maps"
	"sync"
	"testing"

	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/bnema/steam-accounts-cli/internal/ports"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
)

type sentMessage struct {
	Peer domain.PeerID
	Text string
}

// fakePlatform is an in-memory platform client. onLogOn scripts the
// asynchronous outcome of each logon call.
type fakePlatform struct {
	mu         sync.Mutex
	handler    ports.PlatformEventHandler
	raw        map[domain.PeerID]domain.RelationshipKind
	logOns     []domain.LogOnDetails
	logOnErr   error
	onLogOn    func(call int, details domain.LogOnDetails)
	added      []domain.PeerID
	addErr     map[domain.PeerID]error
	onAdd      func(peer domain.PeerID)
	sent       []sentMessage
	sendErr    error
	presence   []domain.PresenceState
	activities []uint32
	logOffs    int

	// logOnBlocks makes LogOn wait for its context like an unanswered call.
	logOnBlocks   bool
	logOnReleased int
}

var _ ports.PlatformClient = (*fakePlatform)(nil)

func newFakePlatform() *fakePlatform {
	return &fakePlatform{addErr: map[domain.PeerID]error{}}
}

func (f *fakePlatform) SetEventHandler(handler ports.PlatformEventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakePlatform) LogOn(ctx context.Context, details domain.LogOnDetails) error {
	f.mu.Lock()
	f.logOns = append(f.logOns, details)
	call := len(f.logOns)
	err := f.logOnErr
	react := f.onLogOn
	blocks := f.logOnBlocks
	f.mu.Unlock()

	if blocks {
		<-ctx.Done()
		f.mu.Lock()
		f.logOnReleased++
		f.mu.Unlock()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	if react != nil {
		go react(call, details)
	}
	return nil
}

func (f *fakePlatform) SetPresence(_ context.Context, state domain.PresenceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append(f.presence, state)
	return nil
}

func (f *fakePlatform) DeclareActivity(_ context.Context, appID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, appID)
	return nil
}

func (f *fakePlatform) AddPeer(_ context.Context, peer domain.PeerID) error {
	f.mu.Lock()
	f.added = append(f.added, peer)
	err := f.addErr[peer]
	onAdd := f.onAdd
	f.mu.Unlock()

	if onAdd != nil {
		onAdd(peer)
	}
	return err
}

func (f *fakePlatform) SendMessage(_ context.Context, peer domain.PeerID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{Peer: peer, Text: text})
	return nil
}

func (f *fakePlatform) LogOff(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logOffs++
	return nil
}

func (f *fakePlatform) Relationships() map[domain.PeerID]domain.RelationshipKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.raw == nil {
		return nil
	}
	return maps.Clone(f.raw)
}

// setRaw replaces the raw map without notifying the handler.
func (f *fakePlatform) setRaw(raw map[domain.PeerID]domain.RelationshipKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = raw
}

// relate updates the raw map and emits a relationship event.
func (f *fakePlatform) relate(peer domain.PeerID, kind domain.RelationshipKind) {
	f.mu.Lock()
	if f.raw == nil {
		f.raw = map[domain.PeerID]domain.RelationshipKind{}
	}
	f.raw[peer] = kind
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		handler.HandleRelationship(peer, kind)
	}
}

func (f *fakePlatform) eventHandler() ports.PlatformEventHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakePlatform) releasedLogOns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logOnReleased
}

func (f *fakePlatform) logOnCalls() []domain.LogOnDetails {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LogOnDetails(nil), f.logOns...)
}

func (f *fakePlatform) addedPeers() []domain.PeerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PeerID(nil), f.added...)
}

func (f *fakePlatform) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakePlatform) presenceCalls() ([]domain.PresenceState, []uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PresenceState(nil), f.presence...), append([]uint32(nil), f.activities...)
}

type mockGuardCodes struct {
	mock.Mock
}

func (m *mockGuardCodes) GenerateCode(sharedSecret string) (string, error) {
	args := m.Called(sharedSecret)
	return args.String(0), args.Error(1)
}

func newTestLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func newTestService(t *testing.T, platform *fakePlatform, codes ports.GuardCodeProvider, cfg SessionConfig) *Service {
	t.Helper()

	if codes == nil {
		codes = &mockGuardCodes{}
	}
	if cfg.Credentials.AccountName == "" {
		cfg.Credentials.AccountName = "bot"
		cfg.Credentials.Password = "hunter2"
	}

	service := NewService(platform, codes, nil, newTestLogger(), cfg)
	t.Cleanup(func() {
		_ = service.Logout(context.Background())
	})
	return service
}
