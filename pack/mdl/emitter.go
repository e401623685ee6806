package mdl

import (
	"github.com/mogaika/odyssey_browser/utils"
)

// Emitter's fixed payload is only the shape of the particle system. The many
// per-particle scalars (birthrate, lifetime, spread, ...) arrive as
// controller streams and are exposed through Node.EmitterProperties, which
// avoids a combinatorial field explosion.
type Emitter struct {
	DeadSpace             float32
	BlastRadius           float32
	BlastLength           float32
	BranchCount           uint32
	ControlPointSmoothing float32
	XGrid                 uint32
	YGrid                 uint32
	SpawnType             uint32

	Update  string
	Render  string
	Blend   string
	Texture string
	Chunk   string

	TwoSided      bool
	Loop          bool
	RenderOrder   uint16
	FrameBlending bool
	DepthTexture  string
}

func (d *decoder) parseEmitter(bs *utils.BufStack, n *Node) error {
	e := &Emitter{}
	n.Emitter = e

	e.DeadSpace = bs.ReadLF()
	e.BlastRadius = bs.ReadLF()
	e.BlastLength = bs.ReadLF()
	e.BranchCount = bs.ReadLU32()
	e.ControlPointSmoothing = bs.ReadLF()
	e.XGrid = bs.ReadLU32()
	e.YGrid = bs.ReadLU32()
	e.SpawnType = bs.ReadLU32()

	e.Update = bs.ReadStringBuffer(32)
	e.Render = bs.ReadStringBuffer(32)
	e.Blend = bs.ReadStringBuffer(32)
	e.Texture = bs.ReadStringBuffer(32)
	e.Chunk = bs.ReadStringBuffer(32)

	e.TwoSided = bs.ReadLU32() != 0
	e.Loop = bs.ReadLU32() != 0
	e.RenderOrder = bs.ReadLU16()
	e.FrameBlending = bs.ReadByte() != 0
	e.DepthTexture = bs.ReadStringBuffer(32)
	bs.Skip(1)

	return nil
}

// EmitterProperties folds the node's scalar controller streams into a name
// to value mapping, one entry per property the engine recognizes. Streams
// with several keyframes contribute their first value.
func (n *Node) EmitterProperties() map[string]float32 {
	if n.Emitter == nil {
		return nil
	}
	props := make(map[string]float32)
	for i := range n.Controllers {
		c := &n.Controllers[i]
		name, ok := emitterControllerNames[c.Type]
		if !ok {
			continue
		}
		values, err := c.Scalars()
		if err != nil || len(values) == 0 {
			continue
		}
		props[name] = values[0]
	}
	return props
}
