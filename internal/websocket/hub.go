// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package websocket streams replay events to browser clients.
//
// The Hub implements replay.Observer: every position change and run
// start/stop is encoded once and fanned out to all connected clients.
// Clients whose send buffer is full are disconnected instead of blocking
// the broadcaster.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/pitwall/internal/logging"
	"github.com/tomtom215/pitwall/internal/metrics"
	"github.com/tomtom215/pitwall/internal/models"
	"github.com/tomtom215/pitwall/internal/replay"
)

// Message types sent to clients.
const (
	MessageTypePosition   = "position"
	MessageTypeRunStarted = "run_started"
	MessageTypeRunStopped = "run_stopped"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// broadcastBuffer is the number of pending frames the hub accepts before
// dropping new ones.
const broadcastBuffer = 256

// Message is the envelope of every frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// PositionData is the payload of a position frame.
type PositionData struct {
	RunID  string        `json:"runId"`
	Sample models.Sample `json:"sample"`
}

// RunStoppedData is the payload of a run_stopped frame.
type RunStoppedData struct {
	RunID string `json:"runId"`
}

// Hub maintains the set of active clients and broadcasts frames to them.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	// done is closed when the current Serve call shuts down and replaced
	// when Serve runs again; guarded by mu.
	done   chan struct{}
	logger zerolog.Logger
}

// NewHub creates a hub. It delivers nothing until Serve runs.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logging.WithComponent("websocket-hub"),
	}
}

// Serve runs the hub until ctx is done, then closes every client. Client
// lifecycle events are handled before pending broadcasts.
func (h *Hub) Serve(ctx context.Context) error {
	h.reopen()
	h.logger.Info().Msg("WebSocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.add(client)
			continue
		case client := <-h.unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case frame := <-h.broadcast:
			h.broadcastToClients(frame)
		}
	}
}

// String names the service in supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	h.logger.Info().Uint64("client_id", client.id).Int("total_clients", total).Msg("WebSocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.WSConnections.Dec()
		h.logger.Info().Uint64("client_id", client.id).Int("total_clients", total).Msg("WebSocket client disconnected")
	}
}

// reopen accepts registrations again after an earlier Serve shut down.
func (h *Hub) reopen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		h.done = make(chan struct{})
	default:
	}
}

// stopped returns the channel closed by the current Serve's shutdown.
func (h *Hub) stopped() <-chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.done
}

// shutdown closes all clients. Registrations are refused until Serve runs
// again.
func (h *Hub) shutdown() {
	h.mu.Lock()
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WSConnections.Sub(float64(count))
	h.logger.Info().Int("clients_closed", count).Msg("WebSocket hub stopped")
}

// broadcastToClients delivers a frame to every client in ID order. Clients
// that cannot keep up are dropped.
func (h *Hub) broadcastToClients(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		select {
		case client.send <- frame:
			metrics.WSMessagesSent.Inc()
		default:
			close(client.send)
			delete(h.clients, client)
			metrics.WSConnections.Dec()
			metrics.WSMessagesDropped.Inc()
			h.logger.Warn().Uint64("client_id", client.id).Msg("Dropping slow WebSocket client")
		}
	}
}

// BroadcastJSON encodes a message and queues it for every client. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	frame, err := json.Marshal(Message{Type: messageType, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("message_type", messageType).Msg("Failed to encode broadcast")
		return
	}

	select {
	case h.broadcast <- frame:
	default:
		metrics.WSMessagesDropped.Inc()
		h.logger.Warn().Str("message_type", messageType).Msg("Broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunStarted implements replay.Observer.
func (h *Hub) RunStarted(info replay.RunInfo) {
	h.BroadcastJSON(MessageTypeRunStarted, info)
}

// PositionChanged implements replay.Observer.
func (h *Hub) PositionChanged(runID string, sample models.Sample) {
	h.BroadcastJSON(MessageTypePosition, PositionData{RunID: runID, Sample: sample})
}

// RunStopped implements replay.Observer.
func (h *Hub) RunStopped(runID string) {
	h.BroadcastJSON(MessageTypeRunStopped, RunStoppedData{RunID: runID})
}

var _ replay.Observer = (*Hub)(nil)
