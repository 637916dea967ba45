package client

import (
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
)

// Client handles communication with the orchestrator daemon
type Client struct {
	conn        *websocket.Conn
	addr        string
	send        chan interface{}
	done        chan struct{}
	OnMessage   func(protocol.RPCMessage)
	OnConnected func()
	OnClosed    func()
	mu          sync.Mutex
	idCounter   int
	pending     map[int]chan protocol.RPCMessage
}

func NewClient(addr string) *Client {
	return &Client{
		addr:    addr,
		send:    make(chan interface{}, 100),
		done:    make(chan struct{}),
		pending: make(map[int]chan protocol.RPCMessage),
	}
}

func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	c.conn = conn

	if c.OnConnected != nil {
		c.OnConnected()
	}

	go c.readPump()
	go c.writePump()

	return nil
}

func (c *Client) Close() {
	close(c.done)
}

// Request sends a command and waits for the response carrying the same ID.
// Broadcast messages (step_event) arriving meanwhile still flow to OnMessage.
func (c *Client) Request(method string, payload interface{}, timeout time.Duration) (protocol.RPCMessage, error) {
	c.mu.Lock()
	c.idCounter++
	id := c.idCounter
	ch := make(chan protocol.RPCMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.send <- protocol.RPCMessage{
		ID:      id,
		Type:    method,
		Payload: protocol.EncodeRPC(payload),
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return resp, fmt.Errorf("%s", resp.Error)
		}
		return resp, nil
	case <-time.After(timeout):
		return protocol.RPCMessage{}, fmt.Errorf("timed out waiting for %s response", method)
	case <-c.done:
		return protocol.RPCMessage{}, fmt.Errorf("connection closed")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		if c.OnClosed != nil {
			c.OnClosed()
		}
	}()

	for {
		var msg protocol.RPCMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			return
		}

		if ch := c.takePending(msg.ID); ch != nil {
			ch <- msg
			continue
		}
		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

// takePending matches a response ID against outstanding requests. The wire ID
// comes back as float64 from JSON decoding.
func (c *Client) takePending(id interface{}) chan protocol.RPCMessage {
	var key int
	switch v := id.(type) {
	case float64:
		key = int(v)
	case int:
		key = v
	default:
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[key]
	if !ok {
		return nil
	}
	delete(c.pending, key)
	return ch
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			err := c.conn.WriteJSON(msg)
			if err != nil {
				log.Printf("Write error: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}
