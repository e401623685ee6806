package mdl

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mogaika/odyssey_browser/utils"
)

// Skin extends a mesh with the skeleton binding. Per-vertex weights live in
// the companion file (see Mesh.BoneWeights), everything here describes which
// nodes act as bones.
type Skin struct {
	// BoneMap is indexed by node number and yields the bone index used by
	// the companion-file bone attributes, -1 for nodes that are not bones.
	// Stored as floats on disk.
	BoneMap []int16

	QBones  []mgl32.Quat
	TBones  []mgl32.Vec3
	Garbage []float32

	BoneSerializationOrder [16]uint16
}

func (d *decoder) parseSkin(bs *utils.BufStack, n *Node) error {
	s := &Skin{}
	n.Skin = s

	bs.Skip(12) // runtime weight array def

	n.Mesh.View.Weights = bs.ReadLI32()
	n.Mesh.View.BoneIndices = bs.ReadLI32()

	boneMapOffset := bs.ReadLU32()
	boneMapCount := bs.ReadLU32()
	qBonesOffset, qBonesCount := readArrayDef(bs)
	tBonesOffset, tBonesCount := readArrayDef(bs)
	garbageOffset, garbageCount := readArrayDef(bs)
	for i := range s.BoneSerializationOrder {
		s.BoneSerializationOrder[i] = bs.ReadLU16()
	}
	bs.Skip(4)

	if boneMapCount > 0 {
		bb := d.geom.SubBuf("bonemap", int(boneMapOffset)).SetSize(int(boneMapCount) * 4).SetName(n.Name)
		s.BoneMap = make([]int16, boneMapCount)
		for i := range s.BoneMap {
			s.BoneMap[i] = int16(bb.ReadLF())
		}
	}
	if qBonesCount > 0 {
		qb := d.geom.SubBuf("qbones", int(qBonesOffset)).SetSize(int(qBonesCount) * 16).SetName(n.Name)
		s.QBones = make([]mgl32.Quat, qBonesCount)
		for i := range s.QBones {
			s.QBones[i] = readQuat(qb)
		}
	}
	if tBonesCount > 0 {
		tb := d.geom.SubBuf("tbones", int(tBonesOffset)).SetSize(int(tBonesCount) * 12).SetName(n.Name)
		s.TBones = make([]mgl32.Vec3, tBonesCount)
		for i := range s.TBones {
			s.TBones[i] = readVec3(tb)
		}
	}
	if garbageCount > 0 {
		gb := d.geom.SubBuf("garbage", int(garbageOffset)).SetSize(int(garbageCount) * 4).SetName(n.Name)
		s.Garbage = make([]float32, garbageCount)
		for i := range s.Garbage {
			s.Garbage[i] = gb.ReadLF()
		}
	}
	return nil
}

// boneMapFloat is the on-disk representation of one BoneMap entry.
func boneMapFloat(bone int16) uint32 {
	return math.Float32bits(float32(bone))
}
