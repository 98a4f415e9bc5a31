/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const maxMessageSize = 64 * 1024

var (
	ErrNotConnected = errors.New("not connected to the relay")
	ErrSendFailed   = errors.New("failed to send to the relay")
)

// Client keeps a websocket connection to the relay open for a single (room, peer) pair.
// Lost connections are re-dialed after `ReconnectDelay` until `Close` is called.
// There is never more than one open connection per client.
type Client struct {
	config   Config
	endpoint string
	dialer   *websocket.Dialer
	logger   *logrus.Entry

	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc

	// Guards `conn` and serializes writes to it.
	mutex sync.Mutex
	conn  *websocket.Conn

	incoming chan Envelope
	states   chan bool

	startOnce sync.Once
	finished  chan struct{}
}

func NewClient(config Config, room, peerID string, logger *logrus.Entry) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	endpoint, err := EndpointURL(config.URL, room, peerID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:   config,
		endpoint: endpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: config.WriteWait},
		logger:   logger.WithField("relay", endpoint),
		ctx:      ctx,
		cancel:   cancel,
		incoming: make(chan Envelope, 32),
		states:   make(chan bool, 1),
		finished: make(chan struct{}),
	}, nil
}

// Starts connecting to the relay. Calling it again has no effect.
func (c *Client) Connect() {
	c.startOnce.Do(func() { go c.run() })
}

// Messages received from the relay in the order they were read.
// The channel is closed once the client is closed.
func (c *Client) Messages() <-chan Envelope {
	return c.incoming
}

// Link state changes, `true` once connected and `false` once the connection is lost.
// Only the most recent state is kept if the consumer falls behind.
func (c *Client) States() <-chan bool {
	return c.states
}

// Sends an envelope on the current connection. Nothing is queued: if the relay is not
// connected, the envelope is dropped and `ErrNotConnected` is returned.
func (c *Client) Send(envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn == nil {
		c.logger.WithField("type", envelope.Type).Warn("relay is not connected, dropping message")
		return ErrNotConnected
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.WithError(err).Warn("failed to write to the relay")
		// The reader notices the broken connection and triggers a reconnect.
		c.conn.Close()
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	return nil
}

// Closes the connection and stops reconnecting. Blocks until the client is fully stopped.
func (c *Client) Close() {
	c.cancel()

	c.mutex.Lock()
	if c.conn != nil {
		deadline := time.Now().Add(c.config.WriteWait)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
			c.logger.WithError(err).Debug("failed to send close message")
		}
		c.conn.Close()
	}
	c.mutex.Unlock()

	// If the client was never started, there is nothing to wait for.
	c.startOnce.Do(func() {
		close(c.incoming)
		close(c.finished)
	})

	<-c.finished
}

func (c *Client) run() {
	defer close(c.finished)
	defer close(c.incoming)

	for {
		conn, _, err := c.dialer.DialContext(c.ctx, c.endpoint, nil)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}

			c.logger.WithError(err).Warn("failed to connect to the relay")
		} else {
			c.serve(conn)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.config.ReconnectDelay):
			c.logger.Info("reconnecting to the relay")
		}
	}
}

// Reads from the connection until it breaks.
func (c *Client) serve(conn *websocket.Conn) {
	c.mutex.Lock()
	if c.ctx.Err() != nil {
		c.mutex.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mutex.Unlock()

	c.logger.Info("connected to the relay")
	c.publishState(true)

	stopPinging := make(chan struct{})
	go c.keepAlive(conn, stopPinging)

	c.readMessages(conn)
	close(stopPinging)

	c.mutex.Lock()
	c.conn = nil
	c.mutex.Unlock()

	conn.Close()
	c.publishState(false)
}

func (c *Client) readMessages(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Warn("relay connection lost")
			} else {
				c.logger.WithError(err).Info("relay connection closed")
			}

			return
		}

		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.logger.WithError(err).Warn("ignoring malformed message from the relay")
			continue
		}

		select {
		case c.incoming <- envelope:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.WithError(err).Warn("failed to ping the relay")
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) publishState(connected bool) {
	select {
	case <-c.states:
	default:
	}

	c.states <- connected
}
