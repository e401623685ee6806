package mdl

import (
	"github.com/go-gl/mathgl/mgl32"
)

// On-disk sizes. Every offset stored in the model file is relative to the end
// of the 12-byte file header, i.e. to the start of the geometry header.
const (
	FILE_HEADER_SIZE     = 0xC
	GEOMETRY_HEADER_SIZE = 0x50
	MODEL_HEADER_SIZE    = 0x58
	NAMES_HEADER_SIZE    = 0x1C
	MODEL_BLOCK_SIZE     = GEOMETRY_HEADER_SIZE + MODEL_HEADER_SIZE + NAMES_HEADER_SIZE

	NODE_HEADER_SIZE      = 0x50
	ANIMATION_HEADER_SIZE = 0x88
	ANIMATION_EVENT_SIZE  = 0x24
	FACE_SIZE             = 0x20
	CONTROLLER_ROW_SIZE   = 0x10
	AABB_NODE_SIZE        = 0x28

	GEOMETRY_TYPE_MODEL     = 2
	GEOMETRY_TYPE_ANIMATION = 5

	// Animation and name counts carry an engine-internal "model is cached"
	// marker in the top bit. It is not part of the count.
	COUNT_CACHED_BIT = 0x80000000
)

// Reserved child-offset values meaning "no node in this slot".
const (
	NODE_OFFSET_NULL = 0
	NODE_OFFSET_NONE = 0xFFFFFFFF
)

type Classification uint8

const (
	CLASSIFICATION_OTHER      Classification = 0x00
	CLASSIFICATION_EFFECT     Classification = 0x01
	CLASSIFICATION_TILE       Classification = 0x02
	CLASSIFICATION_CHARACTER  Classification = 0x04
	CLASSIFICATION_DOOR       Classification = 0x08
	CLASSIFICATION_LIGHTSABER Classification = 0x10
	CLASSIFICATION_PLACEABLE  Classification = 0x20
	CLASSIFICATION_FLYER      Classification = 0x40
)

func (c Classification) String() string {
	switch c {
	case CLASSIFICATION_OTHER:
		return "other"
	case CLASSIFICATION_EFFECT:
		return "effect"
	case CLASSIFICATION_TILE:
		return "tile"
	case CLASSIFICATION_CHARACTER:
		return "character"
	case CLASSIFICATION_DOOR:
		return "door"
	case CLASSIFICATION_LIGHTSABER:
		return "lightsaber"
	case CLASSIFICATION_PLACEABLE:
		return "placeable"
	case CLASSIFICATION_FLYER:
		return "flyer"
	default:
		return "invalid"
	}
}

// Model is the owned result of a load: header fields, the node tree and the
// animation list. It holds no references into the input buffers.
type Model struct {
	Name    string
	Version Version

	Classification    Classification
	SubClassification uint8
	Unk02             uint8
	AffectedByFog     bool
	ChildModelCount   uint32

	SupermodelName string
	BoundingBox    [2]mgl32.Vec3
	Radius         float32
	AnimationScale float32

	Root       *Node
	Animations []*Animation
}

// NodeByName walks the tree depth-first and returns the first node with the
// given name, or nil.
func (m *Model) NodeByName(name string) *Node {
	var walk func(n *Node) *Node
	walk = func(n *Node) *Node {
		if n == nil {
			return nil
		}
		if n.Name == name {
			return n
		}
		for _, child := range n.Children {
			if found := walk(child); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(m.Root)
}

// Nodes returns the tree flattened in depth-first order.
func (m *Model) Nodes() []*Node {
	nodes := make([]*Node, 0, 32)
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		nodes = append(nodes, n)
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(m.Root)
	return nodes
}
