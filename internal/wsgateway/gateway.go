// Package wsgateway binds the wire contract onto core.SessionManager over
// a gorilla/websocket transport: one goroutine pair (read pump, write
// pump) per connection, JSON text frames discriminated by a "type" field.
package wsgateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/WorldsMadeReal/world-host/core"
)

// Gateway upgrades HTTP connections to WebSocket and binds each to a new
// core.Session.
type Gateway struct {
	sessions *core.SessionManager
	upgrader websocket.Upgrader
	log      *logrus.Logger

	heartbeatInterval time.Duration
	connectionTimeout time.Duration
}

// NewGateway builds a Gateway bound to sessions.
func NewGateway(sessions *core.SessionManager, heartbeatInterval, connectionTimeout time.Duration, log *logrus.Logger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gateway{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:               log,
		heartbeatInterval: heartbeatInterval,
		connectionTimeout: connectionTimeout,
	}
}

// ServeHTTP upgrades the request and drives the connection until it
// closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	sess := g.sessions.Connect()
	c := &wsConnection{
		gateway: g,
		conn:    conn,
		session: sess,
	}
	c.run()
}

// ListenAndServe starts the gateway's HTTP server on addr.
func (g *Gateway) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", g)
	g.log.WithField("addr", addr).Info("websocket gateway listening")
	return http.ListenAndServe(addr, mux)
}
