// Package main implements a standalone end-to-end integration test for the
// room server. It validates the full participant journey against a running
// server: health check, join handshake, chat broadcast, edit/delete/reaction
// propagation, typing indicators, call pairing with signal relay, content
// filtering, and rate limiting.
//
// Usage:
//
//	go run ./cmd/e2etest/ [-url ws://localhost:8080/ws] [-api http://localhost:8080] [-timeout 60s]
//
// Exit code 0 if all required scenarios pass, 1 if any fail.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/huddle/room-app/loadtest/client"
)

// ---------------------------------------------------------------------------
// Result tracking
// ---------------------------------------------------------------------------

// resultKind categorises a scenario outcome.
type resultKind int

const (
	resultPass resultKind = iota
	resultFail
	resultInfo // optional / non-fatal
)

// scenarioResult holds the outcome of a single test scenario.
type scenarioResult struct {
	name   string
	kind   resultKind
	detail string
}

func (r scenarioResult) tag() string {
	switch r.kind {
	case resultPass:
		return "PASS"
	case resultFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

func pass(name, detail string) scenarioResult { return scenarioResult{name, resultPass, detail} }
func fail(name, detail string) scenarioResult { return scenarioResult{name, resultFail, detail} }
func info(name, detail string) scenarioResult { return scenarioResult{name, resultInfo, detail} }

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	wsURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	apiBase := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	password := flag.String("password", "", "Room password (empty = open room)")
	timeout := flag.Duration("timeout", 60*time.Second, "Global test timeout")
	flag.Parse()

	fmt.Println("=== Room Server E2E Integration Test ===")
	fmt.Printf("Server: %s\n\n", *wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var results []scenarioResult

	// Run scenarios sequentially.
	results = append(results, scenario1HealthCheck(ctx, *apiBase))
	results = append(results, scenario2JoinHandshake(ctx, *wsURL, *password))
	results = append(results, scenario3BadPassword(ctx, *wsURL, *password))

	// Scenarios 4-6 share a pair of joined clients; run them as a group.
	s4, s5, s6 := scenario456ChatEditTyping(ctx, *wsURL, *password)
	results = append(results, s4, s5, s6)

	results = append(results, scenario7CallFlow(ctx, *wsURL, *password))

	// Optional scenarios (non-fatal).
	results = append(results, scenario8ContentFiltering(ctx, *wsURL, *password))
	results = append(results, scenario9RateLimiting(ctx, *wsURL, *password))

	// -----------------------------------------------------------------------
	// Summary
	// -----------------------------------------------------------------------
	fmt.Println()
	passed, failed, infos := 0, 0, 0
	for _, r := range results {
		fmt.Printf("[%s] %s", r.tag(), r.name)
		if r.detail != "" {
			fmt.Printf(" (%s)", r.detail)
		}
		fmt.Println()

		switch r.kind {
		case resultPass:
			passed++
		case resultFail:
			failed++
		case resultInfo:
			infos++
		}
	}

	requiredTotal := passed + failed
	fmt.Printf("\n=== Results: %d/%d passed", passed, requiredTotal)
	if infos > 0 {
		fmt.Printf(", %d info", infos)
	}
	fmt.Println(" ===")

	if failed > 0 {
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// joinClient connects and authenticates one participant.
func joinClient(ctx context.Context, url, name, password string) (*client.Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := client.New(connCtx, url, client.Options{Username: name, Password: password})
	if err != nil {
		return nil, err
	}
	if err := c.WaitForAuth(connCtx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// awaitSignal waits for a struct{} on ch or times out.
func awaitSignal(ctx context.Context, ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	case <-time.After(timeout):
		return false
	}
}

// ---------------------------------------------------------------------------
// Scenario 1: Health check
// ---------------------------------------------------------------------------

func scenario1HealthCheck(ctx context.Context, apiBase string) scenarioResult {
	const name = "Health check"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/healthz", nil)
	if err != nil {
		return fail(name, err.Error())
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fail(name, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(name, fmt.Sprintf("status %d", resp.StatusCode))
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"status":"ok"`) {
		return fail(name, "unexpected body: "+string(body))
	}
	return pass(name, "")
}

// ---------------------------------------------------------------------------
// Scenario 2: Join handshake
// ---------------------------------------------------------------------------

// scenario2JoinHandshake verifies that a join is answered with auth_ok
// followed by the history snapshot and the call banner state.
func scenario2JoinHandshake(ctx context.Context, wsURL, password string) scenarioResult {
	const name = "Join handshake"

	c, err := client.New(ctx, wsURL, client.Options{Username: "e2e-hs", Password: password})
	if err != nil {
		return fail(name, err.Error())
	}
	defer c.Close()

	gotHistory := make(chan struct{}, 1)
	gotStatus := make(chan struct{}, 1)
	c.On(client.TypeHistory, func(json.RawMessage) {
		select {
		case gotHistory <- struct{}{}:
		default:
		}
	})
	c.On(client.TypeCallStatus, func(json.RawMessage) {
		select {
		case gotStatus <- struct{}{}:
		default:
		}
	})

	authCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.WaitForAuth(authCtx); err != nil {
		return fail(name, err.Error())
	}
	if !awaitSignal(ctx, gotHistory, 5*time.Second) {
		return fail(name, "no history snapshot after auth_ok")
	}
	if !awaitSignal(ctx, gotStatus, 5*time.Second) {
		return fail(name, "no call_status after auth_ok")
	}
	return pass(name, "auth_ok + history + call_status")
}

// ---------------------------------------------------------------------------
// Scenario 3: Bad password
// ---------------------------------------------------------------------------

func scenario3BadPassword(ctx context.Context, wsURL, password string) scenarioResult {
	const name = "Bad password rejected"

	if password == "" {
		return info(name, "skipped: room is open")
	}

	c, err := client.New(ctx, wsURL, client.Options{Username: "e2e-bad", Password: password + "-wrong"})
	if err != nil {
		return fail(name, err.Error())
	}
	defer c.Close()

	authCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = c.WaitForAuth(authCtx)
	if err == nil {
		return fail(name, "wrong password was accepted")
	}
	if !strings.Contains(err.Error(), "auth rejected") {
		return fail(name, "unexpected failure: "+err.Error())
	}
	return pass(name, "")
}

// ---------------------------------------------------------------------------
// Scenarios 4-6: Chat broadcast, edit/delete/reaction, typing
// ---------------------------------------------------------------------------

func scenario456ChatEditTyping(ctx context.Context, wsURL, password string) (s4, s5, s6 scenarioResult) {
	const (
		name4 = "Chat broadcast"
		name5 = "Edit, delete, reaction propagation"
		name6 = "Typing indicator"
	)
	failAll := func(detail string) (scenarioResult, scenarioResult, scenarioResult) {
		return fail(name4, detail), fail(name5, detail), fail(name6, detail)
	}

	alice, err := joinClient(ctx, wsURL, "e2e-alice", password)
	if err != nil {
		return failAll("alice join: " + err.Error())
	}
	defer alice.Close()

	bob, err := joinClient(ctx, wsURL, "e2e-bob", password)
	if err != nil {
		return failAll("bob join: " + err.Error())
	}
	defer bob.Close()

	// --- Scenario 4: alice sends, bob receives the broadcast ---------------
	marker := fmt.Sprintf("e2e chat %d", time.Now().UnixNano())
	msgID := make(chan int64, 1)
	bob.On(client.TypeMessage, func(raw json.RawMessage) {
		var msg struct {
			ID   int64  `json:"id"`
			Text string `json:"text"`
		}
		if json.Unmarshal(raw, &msg) == nil && msg.Text == marker {
			select {
			case msgID <- msg.ID:
			default:
			}
		}
	})

	if err := alice.SendChat(marker); err != nil {
		return failAll("send: " + err.Error())
	}

	var id int64
	select {
	case id = <-msgID:
		s4 = pass(name4, fmt.Sprintf("id=%d", id))
	case <-ctx.Done():
		return failAll("cancelled")
	case <-time.After(10 * time.Second):
		return failAll("broadcast not received")
	}

	// --- Scenario 5: edit, reaction, delete round trips --------------------
	gotEdit := make(chan struct{}, 1)
	gotReact := make(chan struct{}, 1)
	gotDelete := make(chan struct{}, 1)
	bob.On(client.TypeMessageEdit, func(raw json.RawMessage) {
		var msg struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(raw, &msg) == nil && msg.ID == id {
			select {
			case gotEdit <- struct{}{}:
			default:
			}
		}
	})
	bob.On(client.TypeReact, func(raw json.RawMessage) {
		var msg struct {
			MessageID int64 `json:"messageId"`
		}
		if json.Unmarshal(raw, &msg) == nil && msg.MessageID == id {
			select {
			case gotReact <- struct{}{}:
			default:
			}
		}
	})
	bob.On(client.TypeMessageDelete, func(raw json.RawMessage) {
		var msg struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(raw, &msg) == nil && msg.ID == id {
			select {
			case gotDelete <- struct{}{}:
			default:
			}
		}
	})

	alice.Send(map[string]interface{}{"type": client.TypeEditMessage, "messageId": id, "text": marker + " (edited)"})
	bob.Send(map[string]interface{}{"type": client.TypeReaction, "messageId": id, "emoji": "👍", "add": true})
	alice.Send(map[string]interface{}{"type": client.TypeDeleteMessage, "messageId": id})

	switch {
	case !awaitSignal(ctx, gotEdit, 10*time.Second):
		s5 = fail(name5, "edit not propagated")
	case !awaitSignal(ctx, gotReact, 10*time.Second):
		s5 = fail(name5, "reaction not propagated")
	case !awaitSignal(ctx, gotDelete, 10*time.Second):
		s5 = fail(name5, "delete not propagated")
	default:
		s5 = pass(name5, "")
	}

	// --- Scenario 6: typing state reaches the other participant ------------
	gotTyping := make(chan struct{}, 1)
	bob.On(client.TypeTypingUpdate, func(raw json.RawMessage) {
		var msg struct {
			Users []string `json:"users"`
		}
		if json.Unmarshal(raw, &msg) != nil {
			return
		}
		for _, u := range msg.Users {
			if u == alice.Username() {
				select {
				case gotTyping <- struct{}{}:
				default:
				}
				return
			}
		}
	})

	alice.Send(map[string]interface{}{"type": client.TypeTyping, "isTyping": true})
	if !awaitSignal(ctx, gotTyping, 10*time.Second) {
		s6 = fail(name6, "typing_update not received")
	} else {
		s6 = pass(name6, "")
	}
	alice.Send(map[string]interface{}{"type": client.TypeTyping, "isTyping": false})

	return s4, s5, s6
}

// ---------------------------------------------------------------------------
// Scenario 7: Call pairing and signal relay
// ---------------------------------------------------------------------------

func scenario7CallFlow(ctx context.Context, wsURL, password string) scenarioResult {
	const name = "Call pairing and signal relay"

	caller, err := joinClient(ctx, wsURL, "e2e-caller", password)
	if err != nil {
		return fail(name, "caller join: "+err.Error())
	}
	defer caller.Close()

	callee, err := joinClient(ctx, wsURL, "e2e-callee", password)
	if err != nil {
		return fail(name, "callee join: "+err.Error())
	}
	defer callee.Close()

	callerRole := make(chan string, 1)
	calleeRole := make(chan string, 1)
	roleHandler := func(ch chan string) func(json.RawMessage) {
		return func(raw json.RawMessage) {
			var msg struct {
				Role string `json:"role"`
			}
			if json.Unmarshal(raw, &msg) == nil {
				select {
				case ch <- msg.Role:
				default:
				}
			}
		}
	}
	caller.On(client.TypeCallJoined, roleHandler(callerRole))
	callee.On(client.TypeCallJoined, roleHandler(calleeRole))

	gotSignal := make(chan struct{}, 1)
	callee.On(client.TypeWebRTCSignal, func(json.RawMessage) {
		select {
		case gotSignal <- struct{}{}:
		default:
		}
	})
	gotHangup := make(chan struct{}, 1)
	callee.On(client.TypeWebRTCHangup, func(json.RawMessage) {
		select {
		case gotHangup <- struct{}{}:
		default:
		}
	})

	caller.Send(map[string]string{"type": client.TypeCallJoin})
	callee.Send(map[string]string{"type": client.TypeCallJoin})

	waitRole := func(ch chan string) (string, bool) {
		select {
		case r := <-ch:
			return r, true
		case <-ctx.Done():
			return "", false
		case <-time.After(10 * time.Second):
			return "", false
		}
	}
	r1, ok := waitRole(callerRole)
	if !ok {
		return fail(name, "caller never paired")
	}
	r2, ok := waitRole(calleeRole)
	if !ok {
		return fail(name, "callee never paired")
	}
	if r1 != "caller" || r2 != "callee" {
		return fail(name, fmt.Sprintf("roles %q/%q, first requester should be caller", r1, r2))
	}

	caller.Send(map[string]interface{}{
		"type":   client.TypeWebRTCSignal,
		"signal": map[string]string{"kind": "offer", "sdp": "e2e"},
	})
	if !awaitSignal(ctx, gotSignal, 10*time.Second) {
		return fail(name, "signal not relayed to peer")
	}

	caller.Send(map[string]string{"type": client.TypeWebRTCHangup})
	if !awaitSignal(ctx, gotHangup, 10*time.Second) {
		return fail(name, "hangup not relayed to peer")
	}
	return pass(name, "")
}

// ---------------------------------------------------------------------------
// Scenario 8: Content filtering (optional)
// ---------------------------------------------------------------------------

// scenario8ContentFiltering sends a character flood and expects the filter to
// bounce it. Non-fatal: the flood thresholds are server policy.
func scenario8ContentFiltering(ctx context.Context, wsURL, password string) scenarioResult {
	const name = "Content filtering"

	c, err := joinClient(ctx, wsURL, "e2e-flood", password)
	if err != nil {
		return info(name, "join: "+err.Error())
	}
	defer c.Close()

	gotBlocked := make(chan struct{}, 1)
	c.On(client.TypeError, func(raw json.RawMessage) {
		var msg struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(raw, &msg) == nil && msg.Code == "message_blocked" {
			select {
			case gotBlocked <- struct{}{}:
			default:
			}
		}
	})

	if err := c.SendChat(strings.Repeat("a", 40)); err != nil {
		return info(name, "send: "+err.Error())
	}
	if !awaitSignal(ctx, gotBlocked, 5*time.Second) {
		return info(name, "char flood was not blocked")
	}
	return pass(name, "char flood blocked")
}

// ---------------------------------------------------------------------------
// Scenario 9: Rate limiting (optional)
// ---------------------------------------------------------------------------

// scenario9RateLimiting bursts messages and watches for a rate_limited push.
// Non-fatal: rate limiting is only active when the server runs with Redis.
func scenario9RateLimiting(ctx context.Context, wsURL, password string) scenarioResult {
	const name = "Rate limiting"

	c, err := joinClient(ctx, wsURL, "e2e-burst", password)
	if err != nil {
		return info(name, "join: "+err.Error())
	}
	defer c.Close()

	gotLimited := make(chan struct{}, 1)
	c.On(client.TypeRateLimited, func(json.RawMessage) {
		select {
		case gotLimited <- struct{}{}:
		default:
		}
	})

	for i := 0; i < 30; i++ {
		if err := c.SendChat(fmt.Sprintf("burst %d", i)); err != nil {
			break
		}
	}
	if !awaitSignal(ctx, gotLimited, 5*time.Second) {
		return info(name, "no rate_limited push (Redis likely disabled)")
	}
	return pass(name, "")
}
