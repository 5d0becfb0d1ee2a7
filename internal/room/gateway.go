// Package room is the composition root of the server: it owns the connection
// registry, presence aggregator, message store, and call coordinator, routes
// every inbound event through a single worker goroutine, and fans resulting
// broadcasts out to the relevant connections.
//
// The single command queue is the concurrency discipline for the whole room:
// transport goroutines only parse and enqueue, the worker alone mutates
// component state, and outbound writes go through per-connection buffered
// queues so a slow client never stalls the worker.
package room

import (
	"context"
	"log"
	"time"

	"github.com/huddle/room-app/internal/call"
	"github.com/huddle/room-app/internal/history"
	"github.com/huddle/room-app/internal/identity"
	"github.com/huddle/room-app/internal/messaging"
	"github.com/huddle/room-app/internal/metrics"
	"github.com/huddle/room-app/internal/moderation"
	"github.com/huddle/room-app/internal/presence"
	"github.com/huddle/room-app/internal/protocol"
	"github.com/huddle/room-app/internal/ratelimit"
	"github.com/huddle/room-app/internal/ws"
)

// command is one unit of work for the room worker: either a parsed client
// message or a disconnect notification.
type command struct {
	conn       *ws.Connection // nil for disconnects
	connID     string
	msgType    string
	msg        interface{}
	disconnect bool
}

// handlerFunc processes one authenticated client message on the room worker.
type handlerFunc func(conn *ws.Connection, ident identity.Identity, msg interface{})

// Gateway wires the transport to the room components and runs the command
// loop.
type Gateway struct {
	cfg      Config
	server   *ws.Server
	reg      *identity.Registry
	pres     *presence.Aggregator
	hist     *history.Store
	calls    *call.Coordinator
	filter   *moderation.Filter
	limiter  *ratelimit.Limiter
	mirror   *messaging.Mirror
	commands chan command
	handlers map[string]handlerFunc
	done     chan struct{}
}

// New constructs a Gateway with fresh component state. limiter and mirror
// may be nil (disabled).
func New(cfg Config, limiter *ratelimit.Limiter, mirror *messaging.Mirror) *Gateway {
	reg := identity.NewRegistry(cfg.Password)

	g := &Gateway{
		cfg:      cfg,
		reg:      reg,
		pres:     presence.NewAggregator(reg),
		hist:     history.NewStore(cfg.HistoryLimit),
		calls:    call.NewCoordinator(),
		filter:   moderation.NewFilterWithTerms(cfg.BlockedTerms),
		limiter:  limiter,
		mirror:   mirror,
		commands: make(chan command, cfg.CommandQueueSize),
		done:     make(chan struct{}),
	}

	g.handlers = map[string]handlerFunc{
		protocol.TypeMessage:       g.handleMessage,
		protocol.TypeEditMessage:   g.handleEditMessage,
		protocol.TypeDeleteMessage: g.handleDeleteMessage,
		protocol.TypeReaction:      g.handleReaction,
		protocol.TypeTyping:        g.handleTyping,
		protocol.TypeUpdateProfile: g.handleUpdateProfile,
		protocol.TypeCallJoin:      g.handleCallJoin,
		protocol.TypeCallLeave:     g.handleCallLeave,
		protocol.TypeCallRestart:   g.handleCallRestart,
		protocol.TypeWebRTCSignal:  g.handleWebRTCSignal,
		protocol.TypeWebRTCHangup:  g.handleWebRTCHangup,
	}

	serverCfg := ws.DefaultServerConfig()
	serverCfg.ListenAddr = cfg.ListenAddr
	serverCfg.WorkerPoolSize = cfg.WorkerPoolSize
	serverCfg.MaxConnections = cfg.MaxConnections
	serverCfg.SendQueueSize = cfg.SendQueueSize
	serverCfg.ReadTimeout = cfg.ReadTimeout
	serverCfg.WriteTimeout = cfg.WriteTimeout
	serverCfg.StaticDir = cfg.StaticDir

	g.server = ws.NewServer(serverCfg, g.onMessage)
	g.server.SetOnDisconnect(g.onDisconnect)

	return g
}

// Run starts the command loop and the WebSocket server. It blocks until the
// server stops.
func (g *Gateway) Run() error {
	go g.loop()
	return g.server.Start()
}

// Shutdown stops the transport and the command loop.
func (g *Gateway) Shutdown() error {
	err := g.server.Shutdown()
	close(g.done)
	return err
}

// onMessage runs on a transport worker goroutine. It parses the frame,
// answers pings inline, applies rate limits, and enqueues everything else
// for the room worker. No room state is touched here.
func (g *Gateway) onMessage(conn *ws.Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("[room] parse error conn=%s: %v", conn.ID, err)
		g.sendError(conn, "parse_error", "invalid message format")
		return
	}

	// Built-in keepalive: answer without touching the room worker.
	if msgType == protocol.TypePing {
		conn.Touch()
		if data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{}); err == nil {
			conn.Enqueue(data)
		}
		return
	}

	if !g.allow(conn, msgType) {
		return
	}

	g.commands <- command{conn: conn, connID: conn.ID, msgType: msgType, msg: msg}
}

// allow applies the per-connection rate limit rules. Rate limiting happens
// here, on the transport goroutine, so the Redis round trip never runs
// inside the room worker.
func (g *Gateway) allow(conn *ws.Connection, msgType string) bool {
	var rule ratelimit.Rule
	switch msgType {
	case protocol.TypeMessage:
		rule = ratelimit.RuleMessage
	case protocol.TypeJoin:
		rule = ratelimit.RuleJoin
	case protocol.TypeWebRTCSignal:
		rule = ratelimit.RuleSignal
	default:
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	allowed, _ := g.limiter.Allow(ctx, conn.ID, rule)
	if allowed {
		return true
	}

	metrics.RateLimitedTotal.Inc()
	log.Printf("[room] rate limited conn=%s type=%s", conn.ID, msgType)
	if data, err := protocol.NewServerMessage(protocol.TypeRateLimited, protocol.RateLimitedMsg{
		RetryAfter: int(rule.Window.Seconds()),
	}); err == nil {
		conn.Enqueue(data)
	}
	return false
}

// onDisconnect runs on a transport goroutine when a connection is removed for
// any reason (client close, read error, heartbeat eviction). It is routed
// through the same command queue so cleanup is serialized with everything
// else.
func (g *Gateway) onDisconnect(connID string) {
	g.commands <- command{connID: connID, disconnect: true}
}

// loop is the room worker: the only goroutine that mutates room state.
func (g *Gateway) loop() {
	for {
		select {
		case <-g.done:
			return
		case cmd := <-g.commands:
			g.dispatch(cmd)
		}
	}
}

// dispatch processes one command. A panic inside a handler is contained
// here: one bad command must never take down the worker.
func (g *Gateway) dispatch(cmd command) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[room] panic handling %s conn=%s: %v", cmd.msgType, cmd.connID, r)
		}
	}()

	start := time.Now()
	defer func() {
		metrics.CommandLatency.Observe(time.Since(start).Seconds())
	}()

	if cmd.disconnect {
		g.handleDisconnect(cmd.connID)
		return
	}

	if cmd.msgType == protocol.TypeJoin {
		g.handleJoin(cmd.conn, cmd.msg)
		return
	}

	// Everything past this point requires an authenticated connection.
	ident, ok := g.reg.Identity(cmd.connID)
	if !ok {
		log.Printf("[room] dropping %s from unauthenticated conn=%s", cmd.msgType, cmd.connID)
		return
	}

	handler, ok := g.handlers[cmd.msgType]
	if !ok {
		log.Printf("[room] unsupported message type=%q conn=%s", cmd.msgType, cmd.connID)
		g.sendError(cmd.conn, "unsupported_type", "unsupported message type")
		return
	}

	handler(cmd.conn, ident, cmd.msg)
}
