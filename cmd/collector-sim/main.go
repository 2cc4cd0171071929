// Package main provides a load and soak testing tool that drives the
// dispatch WebSocket channel as a fleet of collectors.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"reciapp/internal/geo"
	"reciapp/internal/reconciler"

	"github.com/gorilla/websocket"
)

// Metrics tracks the test results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	EventsReceived       int64
	ClaimsWon            int64
	ClaimsLost           int64
	TicksSent            int64
	Errors               int64
}

var metrics Metrics

func main() {
	host := flag.String("host", "localhost:8420", "API server host")
	token := flag.String("token", "", "Collector bearer JWT (credential issuance is external)")
	clients := flag.Int("clients", 20, "Number of concurrent collectors")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	lat := flag.Float64("lat", -12.0464, "Simulated collector latitude")
	lng := flag.Float64("lng", -77.0428, "Simulated collector longitude")
	flag.Parse()

	if *token == "" {
		log.Fatal("❌ -token is required")
	}

	log.Printf("🚚 Starting Collector Dispatch Simulation")
	log.Printf("Target: %s", *host)
	log.Printf("Clients: %d", *clients)
	log.Printf("Duration: %v", *duration)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	// Start clients
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runCollector(*host, *token, geo.Point{Lat: *lat, Lng: *lng}, stopChan, &wg)
		time.Sleep(50 * time.Millisecond) // Stagger connections to allow ticket issuance
	}

	// Wait for duration or interrupt
	select {
	case <-time.After(*duration):
		log.Println("⏱️  Test duration reached")
	case <-interrupt:
		log.Println("🛑 Interrupted by user")
	}

	close(stopChan)
	log.Println("Waiting for collectors to disconnect...")
	wg.Wait()

	printMetrics()
}

func getTicket(host, token string) (string, error) {
	ticketURL := fmt.Sprintf("http://%s/api/ws/ticket", host)
	req, _ := http.NewRequest("POST", ticketURL, nil)
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ticket issuance failed with status %d", resp.StatusCode)
	}

	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Ticket, nil
}

func claimRequest(host, token, requestID string) error {
	claimURL := fmt.Sprintf("http://%s/api/requests/%s/claim", host, requestID)
	req, _ := http.NewRequest("POST", claimURL, nil)
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("request already claimed")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("claim failed with status %d", resp.StatusCode)
	}
	return nil
}

// runCollector drives one simulated collector: connect, reconcile pushed
// events into a local view, claim the nearest pending request, then stream
// position ticks until the pickup terminates.
func runCollector(host, token string, position geo.Point, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	// Get a fresh ticket for this connection
	ticket, err := getTicket(host, token)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws/", RawQuery: "ticket=" + ticket}

	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()

	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	view := reconciler.NewCollectorView(position)

	// Read loop feeds the reconciler
	go func() {
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}
			atomic.AddInt64(&metrics.EventsReceived, 1)
			if err := view.Apply(raw); err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
			}
			if reason, ok := view.TerminalNotice(); ok {
				log.Printf("pickup ended: %s", reason)
			}
		}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if active := view.Active(); active != nil {
				// Drift toward the pickup point and report position.
				position.Lat += (active.Location.Lat - position.Lat) * 0.2
				position.Lng += (active.Location.Lng - position.Lng) * 0.2
				view.SetPosition(position)

				tick := map[string]interface{}{
					"type":       "location",
					"request_id": active.ID,
					"lat":        position.Lat,
					"lng":        position.Lng,
				}
				tickJSON, _ := json.Marshal(tick)
				if err := c.WriteMessage(websocket.TextMessage, tickJSON); err != nil {
					atomic.AddInt64(&metrics.Errors, 1)
					return
				}
				atomic.AddInt64(&metrics.TicksSent, 1)
				continue
			}

			pending := view.Pending()
			if len(pending) == 0 {
				continue
			}
			// Claim whichever candidate is currently nearest.
			target := pending[0]
			for _, p := range pending[1:] {
				if p.DistanceKm < target.DistanceKm {
					target = p
				}
			}
			actionID, ok := view.BeginClaim(target.ID)
			if !ok {
				continue
			}
			err := claimRequest(host, token, target.ID)
			view.ResolveClaim(actionID, err)
			if err != nil {
				atomic.AddInt64(&metrics.ClaimsLost, 1)
			} else {
				atomic.AddInt64(&metrics.ClaimsWon, 1)
			}
		}
	}
}

func printMetrics() {
	log.Println("\n📊 Simulation Results")
	log.Println("=====================")
	log.Printf("Connections Attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections Successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections Failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Events Received: %d", atomic.LoadInt64(&metrics.EventsReceived))
	log.Printf("Claims Won: %d", atomic.LoadInt64(&metrics.ClaimsWon))
	log.Printf("Claims Lost: %d", atomic.LoadInt64(&metrics.ClaimsLost))
	log.Printf("Location Ticks Sent: %d", atomic.LoadInt64(&metrics.TicksSent))
	log.Printf("Total Errors: %d", atomic.LoadInt64(&metrics.Errors))
}
