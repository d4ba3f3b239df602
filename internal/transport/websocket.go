// Package transport is the concrete WebSocket-based realization of the
// Session Protocol's wire boundary: it frames protocol.Message values as
// binary WebSocket frames, mints connection identities, validates Join
// bearer credentials before a message ever reaches the Shard Router, and
// compresses large outbound snapshots.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"

	"github.com/ernie/quakecore/internal/authtoken"
	"github.com/ernie/quakecore/internal/protoerr"
	"github.com/ernie/quakecore/internal/protocol"
	"github.com/ernie/quakecore/internal/world"
)

// compressThreshold is the encoded size above which an outbound message, of
// any kind, is zstd-compressed before being written to the socket.
const compressThreshold = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// frame is the on-wire envelope: a compression flag plus the (possibly
// compressed) JSON-encoded protocol.Message.
type frame struct {
	Compressed bool            `json:"c"`
	Body       json.RawMessage `json:"b"`
}

// Conn is one WebSocket-backed session connection.
type Conn struct {
	ID     world.ConnectionID
	ws     *websocket.Conn
	verify *authtoken.Verifier
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// Accept upgrades an incoming HTTP request to a WebSocket connection and
// mints a fresh ConnectionID for it.
func Accept(w http.ResponseWriter, r *http.Request, verify *authtoken.Verifier) (*Conn, error) {
	const op = "transport.Accept"

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	return &Conn{
		ID:     world.ConnectionID(uuid.NewString()),
		ws:     ws,
		verify: verify,
		enc:    enc,
		dec:    dec,
	}, nil
}

// Dial opens a client-side WebSocket connection to a quaked server's
// /connect endpoint. The dialed connection has no verifier configured:
// credential verification is the server's job, not the client's.
func Dial(url string) (*Conn, error) {
	const op = "transport.Dial"

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	return &Conn{
		ID:  world.ConnectionID(uuid.NewString()),
		ws:  ws,
		enc: enc,
		dec: dec,
	}, nil
}

// Close releases the underlying socket and codec state.
func (c *Conn) Close() error {
	c.enc.Close()
	c.dec.Close()
	return c.ws.Close()
}

// Send writes msg to the socket, compressing its JSON encoding when that is
// larger than compressThreshold, whatever the message kind.
func (c *Conn) Send(msg protocol.Message) error {
	const op = "transport.Conn.Send"

	body, err := json.Marshal(msg)
	if err != nil {
		return protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}

	f := frame{Body: body}
	if len(body) > compressThreshold {
		f.Compressed = true
		f.Body = c.enc.EncodeAll(body, nil)
	}

	out, err := json.Marshal(f)
	if err != nil {
		return protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, out); err != nil {
		return protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	return nil
}

// Receive reads and decodes the next message. A Join command's Credential
// is verified here, before the message is ever handed to the Shard Router;
// an invalid credential is dropped with a ProtocolViolation error rather
// than forwarded.
func (c *Conn) Receive() (protocol.Message, error) {
	const op = "transport.Conn.Receive"

	var zero protocol.Message
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return zero, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}

	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return zero, protoerr.InvalidFormatf(op, "malformed frame: %v", err)
	}
	body := []byte(f.Body)
	if f.Compressed {
		decoded, err := c.dec.DecodeAll(body, nil)
		if err != nil {
			return zero, protoerr.InvalidFormatf(op, "zstd decode: %v", err)
		}
		body = decoded
	}

	var msg protocol.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return zero, protoerr.InvalidFormatf(op, "malformed message: %v", err)
	}

	if msg.Kind == protocol.KindCommand && msg.Command != nil && msg.Command.Name == protocol.CmdJoin {
		if c.verify == nil {
			return zero, protoerr.Wrap(protoerr.KindProtocolViolation, op, fmt.Errorf("no verifier configured"))
		}
		if err := c.verify.Verify(msg.Command.Credential); err != nil {
			return zero, protoerr.Wrap(protoerr.KindProtocolViolation, op, err)
		}
	}

	return msg, nil
}
