package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koltyakov/miniaccounts/internal/auth"
	"github.com/koltyakov/miniaccounts/internal/btp"
	"github.com/koltyakov/miniaccounts/internal/domain"
	"github.com/koltyakov/miniaccounts/internal/metrics"
	"github.com/koltyakov/miniaccounts/internal/tokenstore"
)

// accountResolver picks the account a token authenticates as.
type accountResolver interface {
	resolve(ctx context.Context, hashed, username, token string) (string, error)
}

func newAccountResolver(tokens *tokenstore.Store) accountResolver {
	if tokens == nil {
		return statelessResolver{}
	}
	return storedResolver{tokens: tokens}
}

// statelessResolver accepts any token as the account it hashes to.
type statelessResolver struct{}

func (statelessResolver) resolve(_ context.Context, hashed, _, _ string) (string, error) {
	return hashed, nil
}

// storedResolver binds each account to the first token seen for it.
type storedResolver struct {
	tokens *tokenstore.Store
}

func (r storedResolver) resolve(ctx context.Context, hashed, username, token string) (string, error) {
	account := hashed
	if username != "" {
		if !validAccountName(username) {
			return "", fmt.Errorf("invalid auth_username %q", username)
		}
		account = username
	}
	stored, err := r.tokens.Load(ctx, account)
	if err != nil {
		return "", err
	}
	if stored == "" {
		err := r.tokens.Save(ctx, account, token)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, domain.ErrTokenExists) {
			return "", err
		}
		// Lost a concurrent first save; check against the winner.
		if stored, err = r.tokens.Load(ctx, account); err != nil {
			return "", err
		}
	}
	if !auth.ConstantTimeEquals(stored, token) {
		return "", &domain.AccountError{Account: account, Op: "auth", Err: domain.ErrIncorrectToken}
	}
	return account, nil
}

// validAccountName accepts a single ILP address segment.
func validAccountName(name string) bool {
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '_' || ch == '-' || ch == '~':
		default:
			return false
		}
	}
	return name != ""
}

// authenticate handles the first frame of a connection. A non-nil error
// means the connection must be closed.
func (s *Server) authenticate(c *conn, frame []byte) error {
	pkt, err := btp.Deserialize(frame)
	if err != nil {
		s.metrics.Handshake(metrics.HandshakeRejected)
		return fmt.Errorf("decode auth frame: %w", err)
	}
	if err := s.handshake(c, pkt); err != nil {
		if c.account != "" {
			s.registry.remove(c.account, c)
			c.account = ""
			s.updateConnectionGauges()
		}
		s.metrics.Handshake(metrics.HandshakeRejected)
		if werr := c.writePacket(btp.NewNotAccepted(pkt.RequestID, err, time.Now())); werr != nil {
			s.log.Debug("failed to send auth rejection", "conn_id", c.id, "err", werr)
		}
		return err
	}
	if err := c.writePacket(btp.NewResponse(pkt.RequestID, nil)); err != nil {
		return fmt.Errorf("send auth response: %w", err)
	}
	c.state = stateAuthenticated
	s.metrics.Handshake(metrics.HandshakeAccepted)
	s.log.Info("client authenticated", "account", c.account, "conn_id", c.id, "remote", c.remote)
	return nil
}

func (s *Server) handshake(c *conn, pkt *btp.Packet) error {
	if pkt.Type != btp.TypeMessage {
		return fmt.Errorf("auth packet must be a %s, got %s", btp.TypeMessage, pkt.Type)
	}
	if len(pkt.ProtocolData) < 2 {
		return errors.New("auth packet must have at least two protocol data entries")
	}
	if pkt.ProtocolData[0].Name != btp.ProtocolAuth {
		return fmt.Errorf("first protocol data entry must be %q", btp.ProtocolAuth)
	}
	tokenEntry, ok := pkt.Get(btp.ProtocolAuthToken)
	if !ok {
		return domain.ErrMissingToken
	}
	token := string(tokenEntry.Data)
	var username string
	if entry, ok := pkt.Get(btp.ProtocolAuthUsername); ok {
		username = string(entry.Data)
	}

	c.account = auth.AccountFromToken(token)
	s.registry.add(c.account, c)
	s.updateConnectionGauges()

	account, err := s.resolver.resolve(c.ctx, c.account, username, token)
	if err != nil {
		return err
	}
	if account != c.account {
		s.registry.move(c.account, account, c)
		c.account = account
		s.updateConnectionGauges()
	}
	if err := s.hooks.connect(c.ctx, s.address(account), pkt, c.req); err != nil {
		return fmt.Errorf("connect rejected: %w", err)
	}
	return nil
}
