package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/realtime"
	"github.com/example/campus-dispatch/internal/storage"
)

var upgrader = websocket.Upgrader{}

// handleWS upgrades the connection and runs a session. A bearer
// token is optional here: anonymous connections are permitted with
// reduced capability (no subscribe, no location push).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var uid string
	if token := bearerToken(r); token != "" {
		v, err := s.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		uid = v
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	sess := realtime.NewSession(s.hub, conn, uid, s.logger)
	sess.Run(r.Context())
}

// NewTopicAuthorizer builds the subscribe-time check the hub runs
// on every subscription request. Authorization is evaluated fresh
// against the store each time, never cached on the connection.
func NewTopicAuthorizer(store storage.Store) realtime.AuthorizeFunc {
	return func(ctx context.Context, uid, topic string) error {
		if uid == "" {
			return fmt.Errorf("%w: authentication required", apperr.ErrUnauthorized)
		}
		kind, rest, ok := strings.Cut(topic, ":")
		if !ok {
			return fmt.Errorf("%w: malformed topic", apperr.ErrValidation)
		}
		switch kind {
		case "order", "ride":
			o, err := store.GetOrder(ctx, rest)
			if err != nil {
				return err
			}
			if !o.IsParty(uid) {
				return fmt.Errorf("%w: not a party to this order", apperr.ErrUnauthorized)
			}
			return nil
		case "pool":
			u, err := store.GetUser(ctx, uid)
			if err != nil {
				return err
			}
			if !u.AssigneeEligible {
				return fmt.Errorf("%w: not eligible for the pool", apperr.ErrUnauthorized)
			}
			return nil
		case "user":
			if rest != uid {
				return fmt.Errorf("%w: private topic", apperr.ErrUnauthorized)
			}
			return nil
		default:
			return fmt.Errorf("%w: unknown topic", apperr.ErrValidation)
		}
	}
}
