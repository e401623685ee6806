package mdl

import (
	"github.com/pkg/errors"
)

// Animation owns a second node tree mirroring (a subset of) the model tree
// by name; its nodes carry only the controller overrides scoped to this
// animation.
type Animation struct {
	Name           string
	Length         float32
	TransitionTime float32

	// AnimRoot names the node the animation applies from, for
	// partial-skeleton animations. Empty means the model root.
	AnimRoot string

	Events []AnimationEvent

	Root *Node
}

type AnimationEvent struct {
	Time float32
	Name string
}

func (d *decoder) parseAnimation(offset uint32) (*Animation, error) {
	bs := d.geom.SubBuf("animation", int(offset)).SetSize(ANIMATION_HEADER_SIZE)

	a := &Animation{}

	bs.Skip(8) // engine function pointers
	a.Name = bs.ReadStringBuffer(32)
	rootNodeOffset := bs.ReadLU32()
	bs.Skip(4)  // node count, implied by the tree
	bs.Skip(24) // runtime scratch
	bs.Skip(4)  // reference counter
	geometryType := bs.ReadByte()
	bs.Skip(3)

	if geometryType != GEOMETRY_TYPE_ANIMATION {
		return nil, errors.Wrapf(ErrConsistency,
			"animation %q has geometry type %d", a.Name, geometryType)
	}

	a.Length = bs.ReadLF()
	a.TransitionTime = bs.ReadLF()
	a.AnimRoot = bs.ReadStringBuffer(32)
	eventsOffset, eventsCount := readArrayDef(bs)
	bs.Skip(4)
	bs.VerifySize(bs.Pos())

	if eventsCount > 0 {
		eb := d.geom.SubBuf("events", int(eventsOffset)).SetSize(int(eventsCount) * ANIMATION_EVENT_SIZE).SetName(a.Name)
		a.Events = make([]AnimationEvent, eventsCount)
		for i := range a.Events {
			a.Events[i].Time = eb.ReadLF()
			a.Events[i].Name = eb.ReadStringBuffer(32)
		}
	}

	if rootNodeOffset != NODE_OFFSET_NULL && rootNodeOffset != NODE_OFFSET_NONE {
		root, err := d.parseNode(rootNodeOffset)
		if err != nil {
			return nil, errors.WithMessagef(err, "animation %q", a.Name)
		}
		a.Root = root
	}
	return a, nil
}
