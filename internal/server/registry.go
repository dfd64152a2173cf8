package server

import (
	"fmt"
	"sync"

	"github.com/koltyakov/miniaccounts/internal/domain"
)

// registry maps accounts to their live connections. An account is present
// only while it has at least one connection.
type registry struct {
	mu       sync.RWMutex
	accounts map[string]map[*conn]struct{}
}

func newRegistry() *registry {
	return &registry{accounts: make(map[string]map[*conn]struct{})}
}

func (r *registry) add(account string, c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.accounts[account]
	if !ok {
		set = make(map[*conn]struct{})
		r.accounts[account] = set
	}
	set[c] = struct{}{}
}

// remove reports whether c was registered under account.
func (r *registry) remove(account string, c *conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(account, c)
}

func (r *registry) removeLocked(account string, c *conn) bool {
	set, ok := r.accounts[account]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.accounts, account)
	}
	return true
}

// move re-registers c from one account to another in a single step.
func (r *registry) move(from, to string, c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(from, c)
	set, ok := r.accounts[to]
	if !ok {
		set = make(map[*conn]struct{})
		r.accounts[to] = set
	}
	set[c] = struct{}{}
}

func (r *registry) snapshot(account string) []*conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.accounts[account]
	out := make([]*conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *registry) has(account string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.accounts[account]
	return ok
}

func (r *registry) counts() (accounts, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.accounts {
		conns += len(set)
	}
	return len(r.accounts), conns
}

// broadcast writes frame to every connection of account. A failed write is
// logged and does not stop delivery to the remaining connections.
func (s *Server) broadcast(account string, frame []byte) error {
	conns := s.registry.snapshot(account)
	if len(conns) == 0 {
		return fmt.Errorf("%w for account %s", domain.ErrNoClientsConnected, account)
	}
	for _, c := range conns {
		if err := c.writeFrame(frame); err != nil {
			s.log.Warn("failed to send frame to client", "account", account, "conn_id", c.id, "err", err)
		}
	}
	return nil
}
