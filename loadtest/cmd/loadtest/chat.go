package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/huddle/room-app/loadtest/client"
	"github.com/huddle/room-app/loadtest/stats"
)

// runChat implements the chat broadcast load test. N participants join the
// room and send messages at a configured per-client rate. Every message body
// carries the sender name and a send timestamp; when the sender receives its
// own broadcast back, the round trip through parse, room worker, log append,
// and fan-out is recorded as the chat latency.
func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	password := fs.String("password", "", "Room password")
	clientsN := fs.Int("clients", 20, "Number of participants")
	duration := fs.Duration("duration", 30*time.Second, "Test duration after all participants joined")
	msgInterval := fs.Duration("interval", 2*time.Second, "Interval between messages per participant")
	metricsURL := fs.String("metrics", "", "Prometheus metrics URL to scrape (empty = disabled)")
	fs.Parse(args)

	fmt.Printf("Chat test: %d participants on %s for %s (interval=%s)\n",
		*clientsN, *url, *duration, *msgInterval)

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
	fmt.Println("\n--- Join phase ---")

	clients := make([]*client.Client, 0, *clientsN)
	for i := 0; i < *clientsN; i++ {
		name := fmt.Sprintf("chat-%04d", i)

		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		c, err := client.New(connCtx, *url, client.Options{Username: name, Password: *password})
		if err != nil {
			cancel()
			collector.AddError()
			fmt.Printf("  join failed for %s: %v\n", name, err)
			continue
		}

		// The latency handler must be in place before any chat flows.
		registerEchoHandler(c, name, collector)

		if err := c.WaitForAuth(connCtx); err != nil {
			cancel()
			collector.AddError()
			c.Close()
			continue
		}
		cancel()
		collector.AddConnect(c.GetMetrics().ConnectLatency)
		clients = append(clients, c)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	fmt.Printf("Joined: %d/%d participants (%d errors)\n",
		len(clients), *clientsN, collector.ErrorCount())
	if len(clients) == 0 {
		collector.Report()
		return
	}

	// -----------------------------------------------------------------------
	// Chat phase
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Chat phase ---")

	var wg sync.WaitGroup
	chatCtx, chatCancel := context.WithTimeout(ctx, *duration)
	defer chatCancel()

	for i, c := range clients {
		wg.Add(1)
		go func(seq int, c *client.Client) {
			defer wg.Done()

			// Stagger senders so messages do not arrive in lockstep.
			offset := time.Duration(seq) * (*msgInterval) / time.Duration(len(clients))
			select {
			case <-chatCtx.Done():
				return
			case <-time.After(offset):
			}

			ticker := time.NewTicker(*msgInterval)
			defer ticker.Stop()
			n := 0
			for {
				select {
				case <-chatCtx.Done():
					return
				case <-ticker.C:
					n++
					text := fmt.Sprintf("lt %s %d %d", c.Username(), time.Now().UnixNano(), n)
					if err := c.SendChat(text); err != nil {
						collector.AddError()
						return
					}
				}
			}
		}(i, c)
	}

	wg.Wait()
	fmt.Println("Chat phase complete.")
	collector.Report()
}

// registerEchoHandler records the broadcast round trip whenever the client
// receives one of its own load test messages back.
func registerEchoHandler(c *client.Client, name string, collector *stats.Collector) {
	prefix := "lt " + name + " "
	c.On(client.TypeMessage, func(raw json.RawMessage) {
		var msg struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		if !strings.HasPrefix(msg.Text, prefix) {
			return
		}
		fields := strings.Fields(msg.Text)
		if len(fields) < 4 {
			return
		}
		sentNano, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return
		}
		collector.AddChatLatency(time.Since(time.Unix(0, sentNano)))
	})
}
