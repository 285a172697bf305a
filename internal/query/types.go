// Package query implements the stateless HTTP read surface: synchronous
// projections of a book.Registry into JSON reply payloads.
package query

import "time"

// envelope is the response shape every data endpoint uses.
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func ok(data interface{}) envelope {
	return envelope{Success: true, Data: data, Timestamp: time.Now()}
}

func fail(msg string) envelope {
	return envelope{Success: false, Error: msg, Timestamp: time.Now()}
}

// healthResponse is the distinct shape of GET /health.
type healthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	UptimeSecs float64   `json:"uptime_seconds"`
	Orderbooks []string  `json:"orderbooks"`
	Binance    string    `json:"binance"`
}

// statsResponse is the payload of GET /api/stats.
type statsResponse struct {
	UptimeSecs  float64            `json:"uptime_seconds"`
	Venue       venueStats         `json:"venue"`
	Subscribers int                `json:"subscribers"`
	Books       map[string]bkStats `json:"orderbooks"`
}

type venueStats struct {
	State             string `json:"state"`
	BootstrapMode     string `json:"bootstrap_mode"`
	ReconnectAttempts int64  `json:"reconnect_attempts"`
}

type bkStats struct {
	TotalBids      int       `json:"total_bids"`
	TotalAsks      int       `json:"total_asks"`
	LastUpdateID   int64     `json:"last_update_id"`
	LastUpdateTime time.Time `json:"last_update_time"`
	ResyncCount    int64     `json:"resync_count"`
}
