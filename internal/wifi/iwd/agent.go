package iwd

import (
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	AgentPath     = "/com/muurk/serial2ip/agent"
	AgentIface    = "net.connman.iwd.Agent"
	AgentMgrIface = "net.connman.iwd.AgentManager"
	CredentialTTL = 30 * time.Second
)

type pendingCredential struct {
	passphrase string
	created    time.Time
}

// Agent answers iwd's passphrase requests with the credentials handed to
// Radio.Connect. iwd calls it over D-Bus while a Network.Connect is running.
type Agent struct {
	conn *dbus.Conn
	log  *zap.Logger

	mu      sync.Mutex
	pending map[dbus.ObjectPath]pendingCredential
}

func newAgent(conn *dbus.Conn, log *zap.Logger) *Agent {
	return &Agent{
		conn:    conn,
		log:     log,
		pending: make(map[dbus.ObjectPath]pendingCredential),
	}
}

func (a *Agent) setPending(network dbus.ObjectPath, passphrase string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[network] = pendingCredential{passphrase: passphrase, created: time.Now()}
}

func (a *Agent) clearPending(network dbus.ObjectPath) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, network)
}

func canceled(reason string) *dbus.Error {
	return dbus.NewError(AgentIface+".Error.Canceled", []interface{}{reason})
}

// RequestPassphrase is called by iwd for PSK/SAE networks.
func (a *Agent) RequestPassphrase(network dbus.ObjectPath) (string, *dbus.Error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cred, ok := a.pending[network]
	if !ok {
		a.log.Debug("Passphrase requested without pending credential", zap.String("network", string(network)))
		return "", canceled("No credential available")
	}
	delete(a.pending, network)

	if time.Since(cred.created) > CredentialTTL {
		a.log.Debug("Pending credential expired", zap.String("network", string(network)))
		return "", canceled("Credential expired")
	}
	return cred.passphrase, nil
}

// RequestPrivateKeyPassphrase is not supported (802.1x).
func (a *Agent) RequestPrivateKeyPassphrase(network dbus.ObjectPath) (string, *dbus.Error) {
	return "", canceled("Private key passphrase not supported")
}

// RequestUserNameAndPassword is not supported (EAP).
func (a *Agent) RequestUserNameAndPassword(network dbus.ObjectPath) (string, string, *dbus.Error) {
	return "", "", canceled("User/password authentication not supported")
}

// RequestUserPassword is not supported (EAP).
func (a *Agent) RequestUserPassword(network dbus.ObjectPath, user string) (string, *dbus.Error) {
	return "", canceled("User password authentication not supported")
}

// Cancel drops every pending credential.
func (a *Agent) Cancel(reason string) *dbus.Error {
	a.log.Debug("Agent request cancelled", zap.String("reason", reason))
	a.mu.Lock()
	a.pending = make(map[dbus.ObjectPath]pendingCredential)
	a.mu.Unlock()
	return nil
}

// Release is called when iwd unregisters the agent.
func (a *Agent) Release() *dbus.Error {
	a.mu.Lock()
	a.pending = make(map[dbus.ObjectPath]pendingCredential)
	a.mu.Unlock()
	return nil
}

func (a *Agent) register() error {
	if err := a.conn.Export(a, dbus.ObjectPath(AgentPath), AgentIface); err != nil {
		return err
	}
	obj := a.conn.Object(IWDService, "/net/connman/iwd")
	return obj.Call(AgentMgrIface+".RegisterAgent", 0, dbus.ObjectPath(AgentPath)).Err
}

func (a *Agent) unregister() error {
	obj := a.conn.Object(IWDService, "/net/connman/iwd")
	err := obj.Call(AgentMgrIface+".UnregisterAgent", 0, dbus.ObjectPath(AgentPath)).Err
	_ = a.conn.Export(nil, dbus.ObjectPath(AgentPath), AgentIface)
	return err
}
