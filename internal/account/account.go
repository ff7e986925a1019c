// Package account provides read-only access to account data like inbox and guild.
package account

import (
	"context"
	"fmt"

	"github.com/cephalon-sofis/wfbuddy/internal/session"
	"github.com/cephalon-sofis/wfbuddy/internal/transport"
)

const (
	PathInbox    = "/API/PHP/inbox.php"
	PathFriends  = "/API/PHP/getFriends.php"
	PathGuild    = "/API/PHP/getGuild.php"
	PathGuildLog = "/API/PHP/getGuildLog.php"
)

// Session sends requests with the token of a live session.
type Session interface {
	Send(ctx context.Context, r session.Request) (transport.Result, error)
}

// Service reads account data. Results are returned as received from the server.
type Service struct {
	sess Session
}

// New returns a new Service.
func New(sess Session) *Service {
	s := &Service{sess: sess}
	return s
}

// Inbox returns the messages in the inbox.
func (s *Service) Inbox(ctx context.Context) (transport.Result, error) {
	return s.get(ctx, PathInbox)
}

// Friends returns the friend list.
func (s *Service) Friends(ctx context.Context) (transport.Result, error) {
	return s.get(ctx, PathFriends)
}

// Guild returns the clan of the account.
func (s *Service) Guild(ctx context.Context) (transport.Result, error) {
	return s.get(ctx, PathGuild)
}

// GuildLog returns the log of the clan.
func (s *Service) GuildLog(ctx context.Context) (transport.Result, error) {
	return s.get(ctx, PathGuildLog)
}

func (s *Service) get(ctx context.Context, path string) (transport.Result, error) {
	r, err := s.sess.Send(ctx, session.Request{Path: path, Auth: session.AuthQuery})
	if err != nil {
		return transport.Result{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
