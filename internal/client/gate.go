package client

import "context"

// SessionGate relays login-state transitions from the externally-owned
// authentication service to the Manager. It is a pure pass-through: no
// buffering and no retry logic lives here.
type SessionGate struct {
	manager *Manager
}

// NewSessionGate binds a gate to the session's connection manager.
func NewSessionGate(manager *Manager) *SessionGate {
	return &SessionGate{manager: manager}
}

// SignIn installs the principal; the Manager starts connecting.
func (g *SessionGate) SignIn(principal Principal) {
	g.manager.SetPrincipal(principal)
}

// SignOut clears the principal; the Manager tears the channel down and stays
// down until SignIn is called again.
func (g *SessionGate) SignOut() {
	g.manager.ClearPrincipal()
}

// StaticPrincipal is a Principal backed by a fixed credential, used by the
// watcher CLI and by callers whose auth service hands them a long-enough
// lived token up front.
type StaticPrincipal struct {
	ID    string
	Value string
}

// UserID returns the principal's identity.
func (p StaticPrincipal) UserID() string { return p.ID }

// Token returns the fixed credential; forceRefresh has nothing to refresh.
func (p StaticPrincipal) Token(_ context.Context, _ bool) (string, error) {
	return p.Value, nil
}
