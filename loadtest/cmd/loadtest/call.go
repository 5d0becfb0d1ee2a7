package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/huddle/room-app/loadtest/client"
	"github.com/huddle/room-app/loadtest/stats"
)

// runCall implements the call signaling load test. Two participants join the
// room, pair into a call, and then push opaque signaling payloads through the
// relay at a configured rate. Each payload carries a send timestamp; the peer
// records the relay latency on receipt. The room holds a single call session,
// so this scenario stresses relay throughput rather than session count.
func runCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	password := fs.String("password", "", "Room password")
	duration := fs.Duration("duration", 30*time.Second, "Signaling duration after pairing")
	sigInterval := fs.Duration("interval", 100*time.Millisecond, "Interval between signals per side")
	metricsURL := fs.String("metrics", "", "Prometheus metrics URL to scrape (empty = disabled)")
	fs.Parse(args)

	fmt.Printf("Call test: signaling on %s for %s (interval=%s)\n", *url, *duration, *sigInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	if *metricsURL != "" {
		scraper := stats.NewScraper(*metricsURL, 2*time.Second)
		scraper.Start(ctx)
		defer scraper.Stop()
		collector.SetScraper(scraper)
	}

	// -----------------------------------------------------------------------
	// Join phase
	// -----------------------------------------------------------------------
	caller := joinParticipant(ctx, *url, "call-a", *password, collector)
	callee := joinParticipant(ctx, *url, "call-b", *password, collector)
	if caller == nil || callee == nil {
		fmt.Println("Join failed; aborting.")
		collector.Report()
		return
	}
	defer caller.Close()
	defer callee.Close()

	// -----------------------------------------------------------------------
	// Pairing phase
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Pairing phase ---")

	paired := make(chan struct{}, 2)
	for _, c := range []*client.Client{caller, callee} {
		c.On(client.TypeCallJoined, func(json.RawMessage) {
			paired <- struct{}{}
		})
		registerSignalHandler(c, collector)
	}

	if err := caller.Send(map[string]string{"type": client.TypeCallJoin}); err != nil {
		fmt.Printf("call_join failed: %v\n", err)
		return
	}
	if err := callee.Send(map[string]string{"type": client.TypeCallJoin}); err != nil {
		fmt.Printf("call_join failed: %v\n", err)
		return
	}

	pairTimeout := time.After(10 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			return
		case <-pairTimeout:
			fmt.Println("Pairing timed out; aborting.")
			collector.Report()
			return
		case <-paired:
		}
	}
	fmt.Println("Paired.")

	// -----------------------------------------------------------------------
	// Signaling phase
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Signaling phase ---")

	sigCtx, sigCancel := context.WithTimeout(ctx, *duration)
	defer sigCancel()

	var wg sync.WaitGroup
	for _, c := range []*client.Client{caller, callee} {
		wg.Add(1)
		go func(c *client.Client) {
			defer wg.Done()
			ticker := time.NewTicker(*sigInterval)
			defer ticker.Stop()
			for {
				select {
				case <-sigCtx.Done():
					return
				case <-ticker.C:
					err := c.Send(map[string]interface{}{
						"type":   client.TypeWebRTCSignal,
						"signal": map[string]int64{"sentNano": time.Now().UnixNano()},
					})
					if err != nil {
						collector.AddError()
						return
					}
				}
			}
		}(c)
	}
	wg.Wait()

	// Hang up so the room is left clean for the next run.
	caller.Send(map[string]string{"type": client.TypeWebRTCHangup})

	fmt.Println("Signaling phase complete.")
	collector.Report()
}

// joinParticipant connects and authenticates one participant, recording its
// connect latency.
func joinParticipant(ctx context.Context, url, name, password string, collector *stats.Collector) *client.Client {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := client.New(connCtx, url, client.Options{Username: name, Password: password})
	if err != nil {
		collector.AddError()
		fmt.Printf("  join failed for %s: %v\n", name, err)
		return nil
	}
	if err := c.WaitForAuth(connCtx); err != nil {
		collector.AddError()
		fmt.Printf("  auth failed for %s: %v\n", name, err)
		c.Close()
		return nil
	}
	collector.AddConnect(c.GetMetrics().ConnectLatency)
	return c
}

// registerSignalHandler records the relay latency for incoming signaling
// payloads stamped by the other side.
func registerSignalHandler(c *client.Client, collector *stats.Collector) {
	c.On(client.TypeWebRTCSignal, func(raw json.RawMessage) {
		var msg struct {
			Signal struct {
				SentNano int64 `json:"sentNano"`
			} `json:"signal"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Signal.SentNano == 0 {
			return
		}
		collector.AddRelayLatency(time.Since(time.Unix(0, msg.Signal.SentNano)))
	})
}
