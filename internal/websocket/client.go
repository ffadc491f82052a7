// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package websocket

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// ErrHubStopped is returned by Attach once the hub has shut down.
var ErrHubStopped = errors.New("websocket hub stopped")

// clientIDCounter gives clients a stable broadcast order.
var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// done is the hub's stop channel at attach time.
	done <-chan struct{}
}

// Attach registers an upgraded connection with the hub and starts its
// read and write pumps.
func (h *Hub) Attach(conn *websocket.Conn) (*Client, error) {
	c := &Client{
		id:   clientIDCounter.Add(1),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: h.stopped(),
	}

	select {
	case h.register <- c:
	case <-c.done:
		_ = conn.Close()
		return nil, ErrHubStopped
	}

	go c.writePump()
	go c.readPump()
	return c, nil
}

// ID returns the client's identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// readPump handles pings from the client and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Uint64("client_id", c.id).Msg("Unexpected WebSocket close")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != MessageTypePing {
			continue
		}
		pong, _ := json.Marshal(Message{Type: MessageTypePong})
		c.enqueue(pong)
	}
}

// enqueue queues a frame for this client only. The hub closes send while
// holding its write lock, so membership is checked under the read lock.
func (c *Client) enqueue(frame []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// writePump writes queued frames and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.logger.Debug().Err(err).Uint64("client_id", c.id).Msg("WebSocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
