package mdl

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Raw header flag bits. They are additive on disk; parsing collapses them to
// exactly one NodeKind and the bitmask never leaks past the parser.
const (
	FLAG_HEADER    = 0x0001
	FLAG_LIGHT     = 0x0002
	FLAG_EMITTER   = 0x0004
	FLAG_CAMERA    = 0x0008
	FLAG_REFERENCE = 0x0010
	FLAG_MESH      = 0x0020
	FLAG_SKIN      = 0x0040
	FLAG_DANGLY    = 0x0100
	FLAG_AABB      = 0x0200
	FLAG_SABER     = 0x0800

	FLAGS_KNOWN_MASK = FLAG_HEADER | FLAG_LIGHT | FLAG_EMITTER | FLAG_CAMERA |
		FLAG_REFERENCE | FLAG_MESH | FLAG_SKIN | FLAG_DANGLY | FLAG_AABB | FLAG_SABER
)

type NodeKind int

const (
	KindDummy NodeKind = iota
	KindMesh
	KindSkinMesh
	KindDanglyMesh
	KindAABBMesh
	KindSaberMesh
	KindLight
	KindEmitter
	KindReference
	KindCamera
)

func (k NodeKind) String() string {
	switch k {
	case KindDummy:
		return "dummy"
	case KindMesh:
		return "trimesh"
	case KindSkinMesh:
		return "skin"
	case KindDanglyMesh:
		return "danglymesh"
	case KindAABBMesh:
		return "aabb"
	case KindSaberMesh:
		return "lightsaber"
	case KindLight:
		return "light"
	case KindEmitter:
		return "emitter"
	case KindReference:
		return "reference"
	case KindCamera:
		return "camera"
	default:
		return "invalid"
	}
}

// HasMesh reports whether nodes of this kind carry mesh geometry.
func (k NodeKind) HasMesh() bool {
	switch k {
	case KindMesh, KindSkinMesh, KindDanglyMesh, KindAABBMesh, KindSaberMesh:
		return true
	}
	return false
}

// resolveKind picks the single richest interpretation of an additive flag
// bitmask. Precedence: AABB > Saber > Skin > Dangly > Mesh > Light > Emitter
// > Reference > Camera > Dummy. Combinations without a defined precedence
// fail instead of guessing.
func resolveKind(flags uint16) (NodeKind, error) {
	if unknown := flags &^ uint16(FLAGS_KNOWN_MASK); unknown != 0 {
		return 0, errors.Wrapf(ErrUnsupportedVariant, "unknown node flag bits 0x%.4x in 0x%.4x", unknown, flags)
	}
	if flags&FLAG_AABB != 0 && flags&FLAG_SABER != 0 {
		return 0, errors.Wrapf(ErrUnsupportedVariant, "aabb+saber flags 0x%.4x have no precedence", flags)
	}
	if flags&FLAG_SKIN != 0 && flags&FLAG_DANGLY != 0 {
		return 0, errors.Wrapf(ErrUnsupportedVariant, "skin+dangly flags 0x%.4x have no precedence", flags)
	}

	switch {
	case flags&FLAG_AABB != 0:
		return KindAABBMesh, nil
	case flags&FLAG_SABER != 0:
		return KindSaberMesh, nil
	case flags&FLAG_SKIN != 0:
		return KindSkinMesh, nil
	case flags&FLAG_DANGLY != 0:
		return KindDanglyMesh, nil
	case flags&FLAG_MESH != 0:
		return KindMesh, nil
	case flags&FLAG_LIGHT != 0:
		return KindLight, nil
	case flags&FLAG_EMITTER != 0:
		return KindEmitter, nil
	case flags&FLAG_REFERENCE != 0:
		return KindReference, nil
	case flags&FLAG_CAMERA != 0:
		return KindCamera, nil
	default:
		return KindDummy, nil
	}
}

// kindFlags is the serializer side of resolveKind.
var kindFlags = map[NodeKind]uint16{
	KindDummy:      FLAG_HEADER,
	KindMesh:       FLAG_HEADER | FLAG_MESH,
	KindSkinMesh:   FLAG_HEADER | FLAG_MESH | FLAG_SKIN,
	KindDanglyMesh: FLAG_HEADER | FLAG_MESH | FLAG_DANGLY,
	KindAABBMesh:   FLAG_HEADER | FLAG_MESH | FLAG_AABB,
	KindSaberMesh:  FLAG_HEADER | FLAG_MESH | FLAG_SABER,
	KindLight:      FLAG_HEADER | FLAG_LIGHT,
	KindEmitter:    FLAG_HEADER | FLAG_EMITTER,
	KindReference:  FLAG_HEADER | FLAG_REFERENCE,
	KindCamera:     FLAG_HEADER | FLAG_CAMERA,
}

// Node is one entry of the transform tree: a shared header plus exactly one
// payload selected by Kind. Pointers other than the ones implied by Kind stay
// nil.
type Node struct {
	Kind       NodeKind
	Name       string
	NodeNumber uint16

	Position    mgl32.Vec3
	Orientation mgl32.Quat

	Controllers []Controller
	Children    []*Node

	Mesh      *Mesh
	Skin      *Skin
	Dangly    *Dangly
	AABB      *AABBNode
	Saber     *Saber
	Light     *Light
	Emitter   *Emitter
	Reference *Reference
}

// Controller returns the first controller of the given type, or nil.
func (n *Node) Controller(ct ControllerType) *Controller {
	for i := range n.Controllers {
		if n.Controllers[i].Type == ct {
			return &n.Controllers[i]
		}
	}
	return nil
}
