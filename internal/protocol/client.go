package protocol

import (
	"fmt"

	"github.com/ernie/quakecore/internal/protoerr"
	"github.com/ernie/quakecore/internal/world"
)

// ClientState mirrors the server-side connection state on the client, and
// enforces the Session Protocol's legal transitions locally before a
// command is even sent.
type ClientState int

const (
	ClientStopped ClientState = iota
	ClientPlaying
	ClientPaused
)

// Client tracks the mirrored state plus the joined (world, player) pair.
type Client struct {
	state    ClientState
	worldID  world.WorldID
	playerID world.PlayerID
	joined   bool
}

// NewClient returns a Client in the Stopped state, not joined to any world.
func NewClient() *Client { return &Client{state: ClientStopped} }

// OnJoined records the (world_id, player_id) pair from a Joined
// notification and automatically transitions to Playing.
func (c *Client) OnJoined(n Notification) {
	c.worldID = n.WorldID
	c.playerID = n.PlayerID
	c.joined = true
	c.state = ClientPlaying
}

// OnLeft clears the joined pair and resets to Stopped.
func (c *Client) OnLeft() {
	c.joined = false
	c.state = ClientStopped
}

// Play requires Stopped.
func (c *Client) Play() error {
	if c.state != ClientStopped {
		return protoerr.Wrap(protoerr.KindProtocolViolation, "protocol.Client.Play", fmt.Errorf("client not stopped"))
	}
	c.state = ClientPlaying
	return nil
}

// Pause requires Playing.
func (c *Client) Pause() error {
	if c.state != ClientPlaying {
		return protoerr.Wrap(protoerr.KindProtocolViolation, "protocol.Client.Pause", fmt.Errorf("client not playing"))
	}
	c.state = ClientPaused
	return nil
}

// Resume requires Paused.
func (c *Client) Resume() error {
	if c.state != ClientPaused {
		return protoerr.Wrap(protoerr.KindProtocolViolation, "protocol.Client.Resume", fmt.Errorf("client not paused"))
	}
	c.state = ClientPlaying
	return nil
}

// Stop requires any non-Stopped state.
func (c *Client) Stop() error {
	if c.state == ClientStopped {
		return protoerr.Wrap(protoerr.KindProtocolViolation, "protocol.Client.Stop", fmt.Errorf("client already stopped"))
	}
	c.state = ClientStopped
	return nil
}

// State returns the current mirrored state.
func (c *Client) State() ClientState { return c.state }

// Joined reports the currently joined (world, player) pair, if any.
func (c *Client) Joined() (world.WorldID, world.PlayerID, bool) {
	return c.worldID, c.playerID, c.joined
}
