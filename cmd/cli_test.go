package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	authadapter "github.com/bnema/steam-accounts-cli/internal/adapters/auth"
	"github.com/bnema/steam-accounts-cli/internal/adapters/httpapi"
	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSharedSecret = "cnOgv/KdpLoP6Nbh0GMkXkPXALQ="

func TestAccountAddThenList(t *testing.T) {
	home := setupHome(t)

	stdout, _, err := executeCLI(t, "account", "add", "--account", "trading", "--name", "Trading bot", "--login", "trade_bot_01")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Saved account trading")

	stdout, _, err = executeCLI(t, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "accounts: 1")
	assert.Contains(t, stdout, "Trading bot (trading)")
	assert.Contains(t, stdout, "login: trade_bot_01")
	assert.Contains(t, stdout, "password: missing")

	assert.FileExists(t, filepath.Join(home, ".sa", "accounts.toml"))
}

func TestAccountListWithoutAccounts(t *testing.T) {
	setupHome(t)

	stdout, _, err := executeCLI(t, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No accounts configured")
}

func TestAccountAddRequiresLoginFlag(t *testing.T) {
	setupHome(t)

	_, _, err := executeCLI(t, "account", "add", "--account", "trading")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s) \"login\" not set")
}

func TestAuthSetStoresSecretInFileBackend(t *testing.T) {
	home := setupHome(t)
	addAccount(t, "main", "bot")

	_, _, err := executeCLI(t, "auth", "set", "--account", "main", "--kind", "password", "--value", "hunter2")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(home, ".sa", "secrets", "main", "password"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(data))

	stdout, _, err := executeCLI(t, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "password: set")
}

func TestAuthSetReadsValueFromInput(t *testing.T) {
	home := setupHome(t)
	addAccount(t, "main", "bot")

	_, stderr, err := executeCLIWithInput(t, testSharedSecret+"\n", "auth", "set", "--account", "main", "--kind", "shared-secret")
	require.NoError(t, err)
	assert.NotContains(t, stderr, testSharedSecret)

	data, err := os.ReadFile(filepath.Join(home, ".sa", "secrets", "main", "shared_secret"))
	require.NoError(t, err)
	assert.Equal(t, testSharedSecret, string(data))

	stdout, _, err := executeCLI(t, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "guard: shared secret")
}

func TestAuthSetRejectsUnknownKind(t *testing.T) {
	setupHome(t)
	addAccount(t, "main", "bot")

	_, _, err := executeCLI(t, "auth", "set", "--account", "main", "--kind", "api_key", "--value", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, application.ErrUnsupportedSecretKind)
}

func TestAuthSetUnknownAccount(t *testing.T) {
	setupHome(t)

	_, _, err := executeCLI(t, "auth", "set", "--account", "ghost", "--kind", "password", "--value", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAuthRemoveDeletesSecret(t *testing.T) {
	home := setupHome(t)
	addAccount(t, "main", "bot")

	_, _, err := executeCLI(t, "auth", "set", "--account", "main", "--kind", "password", "--value", "hunter2")
	require.NoError(t, err)

	_, _, err = executeCLI(t, "auth", "remove", "--account", "main", "--kind", "password")
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(home, ".sa", "secrets", "main", "password"))

	stdout, _, err := executeCLI(t, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "password: missing")
}

func TestCodePrintsCurrentGuardCode(t *testing.T) {
	setupHome(t)
	addAccount(t, "main", "bot")
	setSecret(t, "main", "password", "hunter2")
	setSecret(t, "main", "shared-secret", testSharedSecret)

	before, err := authadapter.GenerateGuardCode(testSharedSecret, time.Now())
	require.NoError(t, err)
	stdout, _, err := executeCLI(t, "code", "--account", "main")
	require.NoError(t, err)
	after, err := authadapter.GenerateGuardCode(testSharedSecret, time.Now())
	require.NoError(t, err)

	code := strings.TrimSpace(stdout)
	assert.Len(t, code, 5)
	assert.Contains(t, []string{before, after}, code)
}

func TestCodeWithoutSharedSecret(t *testing.T) {
	setupHome(t)
	addAccount(t, "main", "bot")
	setSecret(t, "main", "password", "hunter2")

	_, _, err := executeCLI(t, "code", "--account", "main")
	assert.ErrorIs(t, err, errNoSharedSecret)
}

func TestVersionCommand(t *testing.T) {
	setupHome(t)

	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestInvalidLogLevel(t *testing.T) {
	setupHome(t)

	_, _, err := executeCLI(t, "--log-level", "loud", "account", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func TestUnsupportedSecretsBackend(t *testing.T) {
	setupHome(t)
	t.Setenv("SA_SECRETS_BACKEND", "vault")

	_, _, err := executeCLI(t, "account", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported secrets backend \"vault\"")
}

type stubService struct {
	status      application.Status
	accept      application.AcceptResult
	acceptDelay time.Duration

	mu     sync.Mutex
	sendTo []domain.PeerID
}

func (s *stubService) GetStatus() application.Status {
	return s.status
}

func (s *stubService) AcceptAllPending(context.Context) (application.AcceptResult, error) {
	time.Sleep(s.acceptDelay)
	return s.accept, nil
}

func (s *stubService) IsFriend(_ context.Context, peer domain.PeerID) bool {
	return peer == "B"
}

func (s *stubService) SendMessage(_ context.Context, peer domain.PeerID, _ string) error {
	if peer != "B" {
		return domain.ErrNotAFriend
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendTo = append(s.sendTo, peer)
	return nil
}

func (s *stubService) sent() []domain.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PeerID(nil), s.sendTo...)
}

func startStubControl(t *testing.T, service *stubService) string {
	t.Helper()

	logger, _ := test.NewNullLogger()
	server := httptest.NewServer(httpapi.NewHandler(service, logger))
	t.Cleanup(server.Close)
	return server.URL
}

func TestStatusRendersControlServerStatus(t *testing.T) {
	setupHome(t)
	addr := startStubControl(t, &stubService{status: application.Status{
		Connected:       true,
		Ready:           true,
		State:           domain.StateReady,
		FriendsCount:    3,
		PendingRequests: 1,
	}})

	stdout, _, err := executeCLI(t, "status", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Steam Session")
	assert.Contains(t, stdout, "control: "+addr)
	assert.Contains(t, stdout, "friends: 3")
	assert.Contains(t, stdout, "pending requests: 1")
}

func TestStatusJSONOutput(t *testing.T) {
	setupHome(t)
	addr := startStubControl(t, &stubService{status: application.Status{State: domain.StateDisconnected}})

	stdout, _, err := executeCLI(t, "status", "--addr", addr, "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, "\"state\": \"disconnected\"")
	assert.Contains(t, stdout, "\"connected\": false")
}

func TestStatusReadsAddressFromConfigFile(t *testing.T) {
	home := setupHome(t)
	addr := startStubControl(t, &stubService{status: application.Status{State: domain.StateDisconnected}})

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".sa"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".sa", "config.toml"), []byte("[control]\nlisten = \""+addr+"\"\n"), 0o600))

	stdout, _, err := executeCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "not connected")
}

func TestStatusWithoutServer(t *testing.T) {
	setupHome(t)

	_, _, err := executeCLI(t, "status", "--addr", unusedAddr(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query control server")
}

func TestAcceptShowsSpinnerAndResult(t *testing.T) {
	setupHome(t)
	addr := startStubControl(t, &stubService{
		accept: application.AcceptResult{
			Accepted: 1,
			Failed:   []application.AcceptFailure{{Peer: "C", Err: errors.New("limit reached")}},
		},
		acceptDelay: 200 * time.Millisecond,
	})

	stdout, stderr, err := executeCLI(t, "accept", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Accepting friend requests")
	assert.Contains(t, stdout, "accepted: 1")
	assert.Contains(t, stdout, "C: limit reached")
}

func TestAcceptJSONOutput(t *testing.T) {
	setupHome(t)
	addr := startStubControl(t, &stubService{accept: application.AcceptResult{Failed: []application.AcceptFailure{}}})

	stdout, _, err := executeCLI(t, "accept", "--addr", addr, "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"accepted":0,"failed":[]}`, stdout)
}

func TestFriendAndSend(t *testing.T) {
	setupHome(t)
	service := &stubService{}
	addr := startStubControl(t, service)

	stdout, _, err := executeCLI(t, "friend", "B", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "true\n", stdout)

	stdout, _, err = executeCLI(t, "friend", "C", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "false\n", stdout)

	_, _, err = executeCLI(t, "send", "B", "hello", "there", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, []domain.PeerID{"B"}, service.sent())

	_, _, err = executeCLI(t, "send", "C", "hi", "--addr", addr)
	assert.ErrorIs(t, err, domain.ErrNotAFriend)
}

func TestServeFailsWithoutBridge(t *testing.T) {
	home := setupHome(t)
	addAccount(t, "main", "bot")
	setSecret(t, "main", "password", "hunter2")

	_, _, err := executeCLI(t, "serve", "--account", "main", "--socket", filepath.Join(home, "missing.sock"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to platform bridge")
}

func TestServeRequiresPassword(t *testing.T) {
	setupHome(t)
	addAccount(t, "main", "bot")

	_, _, err := executeCLI(t, "serve", "--account", "main")
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestServeLogsOnAndServesControlPlane(t *testing.T) {
	home := setupHome(t)
	addAccount(t, "main", "trade_bot")
	setSecret(t, "main", "password", "hunter2")

	bridge := startFakeBridge(t, filepath.Join(t.TempDir(), "bridge.sock"))
	addr := unusedAddr(t)
	t.Setenv("SA_SESSION_SETTLE_DELAY", "1ms")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveOut := &bytes.Buffer{}
	serveErr := make(chan error, 1)
	root := newRootCmd()
	root.SetOut(serveOut)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--account", "main", "--code", "BK7QX", "--socket", bridge.path, "--addr", addr})
	go func() { serveErr <- root.ExecuteContext(ctx) }()

	client := httpapi.NewClient(addr, nil)
	require.Eventually(t, func() bool {
		status, err := client.Status(context.Background())
		return err == nil && status.Ready && status.FriendsCount == 1 && status.PendingRequests == 1
	}, 5*time.Second, 20*time.Millisecond)

	stdout, _, err := executeCLI(t, "accept", "--addr", addr, "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"accepted":1,"failed":[]}`, stdout)

	stdout, _, err = executeCLI(t, "friend", "B", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "true\n", stdout)

	_, _, err = executeCLI(t, "send", "B", "hello", "there", "--addr", addr)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, serveOut.String(), "Serving account main on "+addr)

	var logOn struct {
		AccountName   string `json:"accountName"`
		Password      string `json:"password"`
		TwoFactorCode string `json:"twoFactorCode"`
		DataDirectory string `json:"dataDirectory"`
	}
	require.NoError(t, json.Unmarshal(bridge.params("logOn"), &logOn))
	assert.Equal(t, "trade_bot", logOn.AccountName)
	assert.Equal(t, "hunter2", logOn.Password)
	assert.Equal(t, "BK7QX", logOn.TwoFactorCode)
	assert.Equal(t, domain.DataDir(filepath.Join(home, ".sa", "data"), "trade_bot"), logOn.DataDirectory)

	assert.JSONEq(t, `{"peer":"A"}`, string(bridge.params("addFriend")))
	assert.JSONEq(t, `{"peer":"B","text":"hello there"}`, string(bridge.params("chatMessage")))
	assert.Contains(t, bridge.methods(), "logOff")
}

type bridgeCall struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeBridge answers every call with an empty result. A logOn is followed
// by a friends list with one pending request and one friend, then loggedOn.
type fakeBridge struct {
	path     string
	listener net.Listener

	mu    sync.Mutex
	calls []bridgeCall
}

func startFakeBridge(t *testing.T, path string) *fakeBridge {
	t.Helper()

	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	b := &fakeBridge{path: path, listener: listener}
	go b.serve()
	return b
}

func (b *fakeBridge) serve() {
	conn, err := b.listener.Accept()
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)
	for scanner.Scan() {
		var call bridgeCall
		if err := json.Unmarshal(scanner.Bytes(), &call); err != nil {
			continue
		}

		b.mu.Lock()
		b.calls = append(b.calls, call)
		b.mu.Unlock()

		if call.ID == "" {
			continue
		}
		_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "id": call.ID, "result": map[string]any{}})

		if call.Method == "logOn" {
			_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "method": "friendsList", "params": map[string]any{
				"relationships": map[string]string{"A": "incoming_request", "B": "friend"},
			}})
			_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "method": "loggedOn", "params": map[string]any{}})
		}
	}
}

func (b *fakeBridge) methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	methods := make([]string, 0, len(b.calls))
	for _, call := range b.calls {
		methods = append(methods, call.Method)
	}
	return methods
}

func (b *fakeBridge) params(method string) json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, call := range b.calls {
		if call.Method == method {
			return call.Params
		}
	}
	return nil
}

func setupHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SA_CONFIG", "")
	t.Setenv("SA_SECRETS_BACKEND", "file")
	t.Setenv("SA_CONTROL_LISTEN", "")
	t.Setenv("SA_PLATFORM_SOCKET", "")
	return home
}

func addAccount(t *testing.T, id string, login string) {
	t.Helper()

	_, _, err := executeCLI(t, "account", "add", "--account", id, "--login", login)
	require.NoError(t, err)
}

func setSecret(t *testing.T, id string, kind string, value string) {
	t.Helper()

	_, _, err := executeCLI(t, "auth", "set", "--account", id, "--kind", kind, "--value", value)
	require.NoError(t, err)
}

func unusedAddr(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIWithInput(t, "", args...)
}

func executeCLIWithInput(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetIn(strings.NewReader(input))
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
