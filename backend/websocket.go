// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Message types of the change feed.
const (
	MsgTypeDocsChanged = "DOCS_CHANGED"
	MsgTypePing        = "PING"
	MsgTypePong        = "PONG"
	MsgTypeError       = "ERROR"
)

// Message is a change feed message.
type Message struct {
	Type      string   `json:"type"`
	IDs       []string `json:"ids,omitempty"`
	ParentIDs []string `json:"parentIds,omitempty"`
	UserID    string   `json:"userId,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ChangeHub fans document change notifications out to every connected
// listing page. A single goroutine owns the client set.
type ChangeHub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan Message
	direct     chan clientMessage
	done       chan struct{}
	closeOnce  sync.Once
	active     atomic.Int64
	debugf     func(string, ...any)
}

type clientMessage struct {
	client *wsClient
	msg    Message
}

type wsClient struct {
	hub    *ChangeHub
	conn   *websocket.Conn
	send   chan Message
	userId string
}

// NewChangeHub creates a hub and starts its loop.
func NewChangeHub(debugf func(string, ...any)) *ChangeHub {
	if debugf == nil {
		debugf = func(string, ...any) {}
	}
	h := &ChangeHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan Message, 64),
		direct:     make(chan clientMessage, 16),
		done:       make(chan struct{}),
		debugf:     debugf,
	}
	go h.run()
	return h
}

func (h *ChangeHub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.active.Store(int64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.active.Store(int64(len(h.clients)))
		case msg := <-h.broadcast:
			h.debugf("Broadcasting %s ids=%v to %d clients", msg.Type, msg.IDs, len(h.clients))
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.active.Store(int64(len(h.clients)))
		case d := <-h.direct:
			if h.clients[d.client] {
				select {
				case d.client.send <- d.msg:
				default:
				}
			}
		case <-h.done:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.active.Store(0)
			return
		}
	}
}

// Publish notifies clients that documents changed. It never blocks on slow clients.
func (h *ChangeHub) Publish(userId string, ids, parentIds []string) {
	msg := Message{Type: MsgTypeDocsChanged, IDs: ids, ParentIDs: parentIds, UserID: userId}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// ActiveClients returns the number of connected clients.
func (h *ChangeHub) ActiveClients() int {
	return int(h.active.Load())
}

// Close disconnects every client and stops the hub.
func (h *ChangeHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *ChangeHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan Message, 16), userId: getUserID(r)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only answers pings; the feed is one-way.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			return
		}
		switch msg.Type {
		case MsgTypePing:
			c.hub.reply(c, Message{Type: MsgTypePong})
		default:
			c.hub.reply(c, Message{Type: MsgTypeError, Error: "Unknown message type"})
		}
	}
}

// reply queues a message for a single client through the hub loop.
func (h *ChangeHub) reply(c *wsClient, msg Message) {
	select {
	case h.direct <- clientMessage{client: c, msg: msg}:
	case <-h.done:
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
