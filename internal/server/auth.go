package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/realtime"
)

// ErrUnauthenticated is returned when the upgrade request carries no
// verified identity.
var ErrUnauthenticated = errors.New("request carries no verified identity")

// GatewayAuthenticator reads the identity headers set by the authenticating
// reverse proxy in front of this service. The proxy validates the JWT and
// forwards the decoded claims; this service never touches token
// cryptography. The manager still re-checks activity and expiry.
type GatewayAuthenticator struct{}

const (
	headerUser   = "X-Auth-User"
	headerActive = "X-Auth-Active"
	headerExpiry = "X-Auth-Expiry"
)

func (GatewayAuthenticator) Authenticate(r *http.Request) (realtime.Principal, error) {
	userID := r.Header.Get(headerUser)
	if userID == "" {
		return realtime.Principal{}, ErrUnauthenticated
	}

	p := realtime.Principal{
		UserID:   userID,
		IsActive: r.Header.Get(headerActive) != "false",
	}

	if raw := r.Header.Get(headerExpiry); raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return realtime.Principal{}, ErrUnauthenticated
		}
		p.ExpiresAt = time.Unix(unix, 0)
	}

	return p, nil
}
