package server

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/koltyakov/miniaccounts/internal/btp"
)

// callTable correlates outbound MESSAGE frames with the RESPONSE or ERROR
// frame carrying the same request id.
type callTable struct {
	mu      sync.Mutex
	pending map[uint32]chan *btp.Packet
}

func newCallTable() *callTable {
	return &callTable{pending: make(map[uint32]chan *btp.Packet)}
}

// register reserves a random request id that is not currently in flight.
func (t *callTable) register() (uint32, chan *btp.Packet) {
	ch := make(chan *btp.Packet, 1)
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		id := randomRequestID()
		if _, taken := t.pending[id]; taken {
			continue
		}
		t.pending[id] = ch
		return id, ch
	}
}

// resolve delivers p to the waiting call. Replies for unknown ids, or a
// second reply for the same id, are dropped.
func (t *callTable) resolve(p *btp.Packet) bool {
	t.mu.Lock()
	ch, ok := t.pending[p.RequestID]
	if ok {
		delete(t.pending, p.RequestID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- p
	return true
}

func (t *callTable) cancel(id uint32) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *callTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func waitReply(ctx context.Context, ch <-chan *btp.Packet, timeout time.Duration) (*btp.Packet, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-ch:
		return p, nil
	case <-timer.C:
		return nil, fmt.Errorf("timed out after %s waiting for client response", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func randomRequestID() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}
