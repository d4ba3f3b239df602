package ecs

import "github.com/ernie/quakecore/internal/netio"

// EntityMarker carries the format-level entity identifier a demo or level
// decoder assigned, distinct from the generational EntityID handle used to
// address the ECS slot itself.
type EntityMarker struct {
	ID uint16
}

// Transform is the one spatial component every spawned entity carries.
type Transform struct {
	Position netio.Vec3
	Angles   netio.Vec3
}

// Dirty tags an entity whose Transform was mutated since the last tick.
type Dirty struct{}

// ModelIndex, Frame, Colormap and Skin are the format-derived tag
// components a demo's SpawnBaseline/UpdateEntity events carry alongside
// Transform.
type ModelIndex struct{ Value uint8 }
type Frame struct{ Value uint8 }
type Colormap struct{ Value uint8 }
type Skin struct{ Value uint8 }
