package room

import (
	"log"

	"github.com/huddle/room-app/internal/messaging"
	"github.com/huddle/room-app/internal/metrics"
	"github.com/huddle/room-app/internal/protocol"
	"github.com/huddle/room-app/internal/ws"
)

// send builds a server message and queues it on one connection. Failures are
// logged, never surfaced: outbound delivery is best-effort by design.
func (g *Gateway) send(conn *ws.Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[room] build %s failed: %v", msgType, err)
		return
	}
	conn.Enqueue(data)
}

// sendToID queues a server message on the connection with the given id, if
// it is still live.
func (g *Gateway) sendToID(connID string, msgType string, payload interface{}) {
	data := g.mustBuild(msgType, payload)
	if data == nil {
		return
	}
	if err := g.server.SendMessage(connID, data); err != nil {
		log.Printf("[room] send %s to conn=%s failed: %v", msgType, connID, err)
	}
}

// broadcast queues a server message on every authenticated connection and
// returns the encoded frame so callers can mirror it. Unauthenticated
// connections see nothing of the room.
func (g *Gateway) broadcast(msgType string, payload interface{}) []byte {
	return g.broadcastExcept("", msgType, payload)
}

// broadcastExcept is broadcast minus every connection bound to exceptName
// (all tabs of that identity). An empty exceptName excludes nobody.
func (g *Gateway) broadcastExcept(exceptName string, msgType string, payload interface{}) []byte {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[room] build %s failed: %v", msgType, err)
		return nil
	}

	for _, conn := range g.server.Connections().All() {
		ident, ok := g.reg.Identity(conn.ID)
		if !ok {
			continue
		}
		if exceptName != "" && ident.Name == exceptName {
			continue
		}
		conn.Enqueue(data)
	}
	return data
}

// broadcastPresence pushes the current online list to everyone and mirrors
// it. Called after every registry change.
func (g *Gateway) broadcastPresence() {
	snap := g.pres.Snapshot()
	metrics.OnlineIdentities.Set(float64(snap.Total))

	if data := g.broadcast(protocol.TypePresenceUpdate, snap); data != nil {
		g.mirror.Publish(messaging.SubjectPresence, data)
	}
}

// sendError reports a protocol-level problem back to the offending
// connection.
func (g *Gateway) sendError(conn *ws.Connection, code, message string) {
	g.send(conn, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}

// mustBuild encodes a server message, returning nil bytes on failure. The
// send paths treat nil as an already-logged no-op.
func (g *Gateway) mustBuild(msgType string, payload interface{}) []byte {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[room] build %s failed: %v", msgType, err)
		return nil
	}
	return data
}
