// Package protocol defines the Session Protocol's wire message schema
// (Command/Notification/Intent/Snapshot) and the client-side state mirror
// that enforces legal play/pause/resume/stop transitions.
package protocol

import (
	"github.com/ernie/quakecore/internal/world"
)

// MessageKind tags which payload field of a Message is meaningful.
type MessageKind int

const (
	KindCommand MessageKind = iota
	KindNotification
	KindIntent
	KindSnapshot
)

// CommandName enumerates the Command variants a client may send.
type CommandName int

const (
	CmdSpawn CommandName = iota
	CmdDespawn
	CmdJoin
	CmdLeave
	CmdPlay
	CmdPause
	CmdResume
	CmdStop
)

// Command is a client-to-server control message. Not every field is
// meaningful for every CommandName; Mode is set only for Spawn, Credential
// only for Join.
type Command struct {
	Name       CommandName
	Mode       world.Mode
	WorldID    world.WorldID
	PlayerID   world.PlayerID
	Credential string // opaque bearer credential, validated by the transport adapter before a Join ever reaches the router
}

// NotificationName enumerates the Notification variants the server sends.
type NotificationName int

const (
	NotifySpawned NotificationName = iota
	NotifyDespawned
	NotifyJoined
	NotifyLeft
)

// Notification is a server-to-client acknowledgement.
type Notification struct {
	Name     NotificationName
	WorldID  world.WorldID
	MapName  string
	PlayerID world.PlayerID
}

// Intent is one frame of player input, tagged with the (world, player) it
// applies to.
type Intent struct {
	WorldID  world.WorldID
	PlayerID world.PlayerID
	Payload  []byte // opaque to the protocol layer; interpreted by gameplay systems out of this core's scope
}

// SnapshotMessage is the wire form of a world.Snapshot plus the world it
// came from, for client-side routing.
type SnapshotMessage struct {
	WorldID  world.WorldID
	Snapshot world.Snapshot
}

// Message is the outer tagged envelope carried over the transport.
type Message struct {
	Kind         MessageKind
	Command      *Command
	Notification *Notification
	Intent       *Intent
	Snapshot     *SnapshotMessage
}
