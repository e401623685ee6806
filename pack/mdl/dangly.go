package mdl

import (
	"github.com/mogaika/odyssey_browser/utils"
)

// Dangly extends a mesh with spring constraints for loose geometry (hair,
// cloth, chains). Simulation is the engine's business, the codec only
// carries the parameters.
type Dangly struct {
	Constraints  []float32
	Displacement float32
	Tightness    float32
	Period       float32

	// Companion-file offset of the per-vertex "can move" bitmap.
	DataOffset int32
}

func (d *decoder) parseDangly(bs *utils.BufStack, n *Node) error {
	dm := &Dangly{}
	n.Dangly = dm

	constraintsOffset, constraintsCount := readArrayDef(bs)
	dm.Displacement = bs.ReadLF()
	dm.Tightness = bs.ReadLF()
	dm.Period = bs.ReadLF()
	dm.DataOffset = bs.ReadLI32()

	if constraintsCount > 0 {
		cb := d.geom.SubBuf("constraints", int(constraintsOffset)).SetSize(int(constraintsCount) * 4).SetName(n.Name)
		dm.Constraints = make([]float32, constraintsCount)
		for i := range dm.Constraints {
			dm.Constraints[i] = cb.ReadLF()
		}
	}
	return nil
}
