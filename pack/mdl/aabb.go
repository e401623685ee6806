package mdl

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/mogaika/odyssey_browser/utils"
)

// AABBNode is one node of the collision tree. A branch has two children and
// FaceIndex == -1; a leaf has no children and a valid face index. No other
// combination exists.
type AABBNode struct {
	BoundingBox [2]mgl32.Vec3

	Left  *AABBNode
	Right *AABBNode

	FaceIndex            int32
	MostSignificantPlane uint32
}

func (a *AABBNode) IsLeaf() bool {
	return a.FaceIndex != -1
}

// CountNodes returns the size of the subtree including the receiver.
func (a *AABBNode) CountNodes() int {
	if a == nil {
		return 0
	}
	return 1 + a.Left.CountNodes() + a.Right.CountNodes()
}

func (d *decoder) parseAABB(bs *utils.BufStack, n *Node) error {
	rootOffset := bs.ReadLU32()
	root, err := d.parseAABBNode(rootOffset, n.Name)
	if err != nil {
		return err
	}
	n.AABB = root
	return nil
}

func (d *decoder) parseAABBNode(offset uint32, name string) (*AABBNode, error) {
	if _, visited := d.visited[offset]; visited {
		return nil, errors.Wrapf(ErrCycleDetected, "collision tree node at 0x%x of %q revisited", offset, name)
	}
	d.visited[offset] = struct{}{}

	bs := d.geom.SubBuf("aabbnode", int(offset)).SetSize(AABB_NODE_SIZE)

	a := &AABBNode{}
	a.BoundingBox[0] = readVec3(bs)
	a.BoundingBox[1] = readVec3(bs)
	leftOffset := bs.ReadLU32()
	rightOffset := bs.ReadLU32()
	a.FaceIndex = bs.ReadLI32()
	a.MostSignificantPlane = bs.ReadLU32()
	bs.VerifySize(bs.Pos())

	hasChildren := leftOffset != NODE_OFFSET_NULL || rightOffset != NODE_OFFSET_NULL
	if a.FaceIndex == -1 {
		if leftOffset == NODE_OFFSET_NULL || rightOffset == NODE_OFFSET_NULL {
			return nil, errors.Wrapf(ErrConsistency,
				"collision branch at 0x%x of %q is missing a child", offset, name)
		}
		var err error
		if a.Left, err = d.parseAABBNode(leftOffset, name); err != nil {
			return nil, err
		}
		if a.Right, err = d.parseAABBNode(rightOffset, name); err != nil {
			return nil, err
		}
	} else if hasChildren {
		return nil, errors.Wrapf(ErrConsistency,
			"collision leaf at 0x%x of %q (face %d) has children", offset, name, a.FaceIndex)
	}
	return a, nil
}
