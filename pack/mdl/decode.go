package mdl

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/mogaika/odyssey_browser/utils"
)

// Variant payload sizes that do not differ between versions. The trimesh
// payload size lives in the version layout table.
const (
	SKIN_PAYLOAD_SIZE      = 100
	DANGLY_PAYLOAD_SIZE    = 28
	AABB_PAYLOAD_SIZE      = 4
	SABER_PAYLOAD_SIZE     = 20
	LIGHT_PAYLOAD_SIZE     = 92
	EMITTER_PAYLOAD_SIZE   = 236
	REFERENCE_PAYLOAD_SIZE = 36
)

type decoder struct {
	version Version
	layout  *layout

	// geom is the offset base: everything stored in the file is relative to
	// the end of the 12-byte file header.
	geom *utils.BufStack
	mdx  *utils.BufStack

	names []string

	// visited tracks parsed node offsets. The format models a tree; an
	// offset seen twice is a malformed or adversarial file.
	visited map[uint32]struct{}
}

// Decode parses a model and its companion vertex file, probing the version.
func Decode(mdlData, mdxData []byte) (*Model, error) {
	version, err := DetectVersion(mdlData)
	if err != nil {
		return nil, err
	}
	return DecodeVersion(mdlData, mdxData, version)
}

// DecodeVersion parses with an explicit version selector. The returned tree
// owns all of its memory; on any error no partial tree is returned.
func DecodeVersion(mdlData, mdxData []byte, version Version) (model *Model, err error) {
	defer recoverParseError(&err)

	l, ok := layouts[version]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedVariant, "unknown version %d", int(version))
	}

	file := utils.NewBufStack("mdl", mdlData).SetName("primary")

	header := file.SubBuf("fileheader", 0).SetSize(FILE_HEADER_SIZE)
	if magic := header.ReadLU32(); magic != 0 {
		return nil, errors.Wrapf(ErrConsistency, "first word is 0x%.8x, not a model file", magic)
	}
	mdlDataSize := header.ReadLU32()
	mdxDataSize := header.ReadLU32()

	if int(mdlDataSize) > len(mdlData)-FILE_HEADER_SIZE {
		return nil, errors.Wrapf(ErrTruncatedData,
			"header declares 0x%x geometry bytes, buffer has 0x%x", mdlDataSize, len(mdlData)-FILE_HEADER_SIZE)
	}
	if int(mdxDataSize) > len(mdxData) {
		return nil, errors.Wrapf(ErrConsistency,
			"header declares 0x%x companion bytes, buffer has 0x%x", mdxDataSize, len(mdxData))
	}

	d := &decoder{
		version: version,
		layout:  l,
		geom:    file.SubBuf("geometry", FILE_HEADER_SIZE).SetSize(int(mdlDataSize)),
		mdx:     utils.NewBufStack("mdx", mdxData).SetName("companion"),
		visited: make(map[uint32]struct{}),
	}
	return d.parseModel()
}

func (d *decoder) parseModel() (*Model, error) {
	m := &Model{Version: d.version}

	bs := d.geom.SubBuf("modelheader", 0).SetSize(MODEL_BLOCK_SIZE)

	// Geometry header.
	bs.Skip(8) // engine function pointers
	m.Name = bs.ReadStringBuffer(32)
	rootNodeOffset := bs.ReadLU32()
	bs.Skip(4)  // node count, implied by the tree
	bs.Skip(24) // runtime scratch
	bs.Skip(4)  // reference counter
	geometryType := bs.ReadByte()
	bs.Skip(3)

	if geometryType != GEOMETRY_TYPE_MODEL {
		return nil, errors.Wrapf(ErrConsistency, "geometry type %d is not a model", geometryType)
	}

	// Model header.
	m.Classification = Classification(bs.ReadByte())
	m.SubClassification = bs.ReadByte()
	m.Unk02 = bs.ReadByte()
	m.AffectedByFog = bs.ReadByte() != 0
	m.ChildModelCount = bs.ReadLU32()
	animationsOffset, animationsCount := readArrayDef(bs)
	bs.Skip(4) // supermodel pointer, runtime only
	m.BoundingBox[0] = readVec3(bs)
	m.BoundingBox[1] = readVec3(bs)
	m.Radius = bs.ReadLF()
	m.AnimationScale = bs.ReadLF()
	m.SupermodelName = bs.ReadStringBuffer(32)

	// Names header.
	bs.Skip(4) // root node offset, again
	bs.Skip(4) // unused
	bs.Skip(4) // companion size, already validated from the file header
	bs.Skip(4) // companion offset
	namesOffset, namesCount := readArrayDef(bs)
	bs.VerifySize(bs.Pos())

	// The name pool's length is derived, not stored: it runs from the end
	// of the name offset array to the first animation, or to the root node
	// when there are no animations.
	namesEnd := rootNodeOffset
	if animationsCount > 0 {
		namesEnd = animationsOffset
	}
	if err := d.parseNames(namesOffset, namesCount, namesEnd); err != nil {
		return nil, err
	}

	root, err := d.parseNode(rootNodeOffset)
	if err != nil {
		return nil, err
	}
	m.Root = root

	if animationsCount > 0 {
		m.Animations = make([]*Animation, animationsCount)
		for i := range m.Animations {
			animationOffset := d.geom.LU32(int(animationsOffset) + i*4)
			if m.Animations[i], err = d.parseAnimation(animationOffset); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (d *decoder) parseNode(offset uint32) (*Node, error) {
	if _, visited := d.visited[offset]; visited {
		return nil, errors.Wrapf(ErrCycleDetected, "node at 0x%x revisited", offset)
	}
	d.visited[offset] = struct{}{}

	bs := d.geom.SubBuf("node", int(offset)).SetSize(NODE_HEADER_SIZE)

	flags := bs.ReadLU16()
	kind, err := resolveKind(flags)
	if err != nil {
		return nil, errors.WithMessagef(err, "node at 0x%x", offset)
	}

	n := &Node{Kind: kind}
	n.NodeNumber = bs.ReadLU16()
	nameIndex := bs.ReadLU16()
	bs.Skip(2)
	bs.Skip(8) // root and parent offsets, rebuilt from the tree
	n.Position = readVec3(bs)
	n.Orientation = readQuat(bs)
	childrenOffset, childrenCount := readArrayDef(bs)
	controllersOffset, controllersCount := readArrayDef(bs)
	controllerDataOffset, controllerDataCount := readArrayDef(bs)
	bs.VerifySize(bs.Pos())

	if n.Name, err = d.resolveName(nameIndex); err != nil {
		return nil, errors.WithMessagef(err, "node at 0x%x", offset)
	}

	controllerData := make([]uint32, controllerDataCount)
	for i := range controllerData {
		controllerData[i] = d.geom.LU32(int(controllerDataOffset) + i*4)
	}
	if err := d.parseControllers(n, controllersOffset, controllersCount, controllerData); err != nil {
		return nil, errors.WithMessagef(err, "node %q", n.Name)
	}

	if err := d.parsePayload(n, offset); err != nil {
		return nil, errors.WithMessagef(err, "node %q", n.Name)
	}

	for i := 0; i < int(childrenCount); i++ {
		childOffset := d.geom.LU32(int(childrenOffset) + i*4)
		if childOffset == NODE_OFFSET_NULL || childOffset == NODE_OFFSET_NONE {
			continue
		}
		child, err := d.parseNode(childOffset)
		if err != nil {
			return nil, errors.WithMessagef(err, "child %d of %q", i, n.Name)
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func (d *decoder) payloadSize(kind NodeKind) int {
	switch kind {
	case KindMesh:
		return d.layout.meshPayloadSize
	case KindSkinMesh:
		return d.layout.meshPayloadSize + SKIN_PAYLOAD_SIZE
	case KindDanglyMesh:
		return d.layout.meshPayloadSize + DANGLY_PAYLOAD_SIZE
	case KindAABBMesh:
		return d.layout.meshPayloadSize + AABB_PAYLOAD_SIZE
	case KindSaberMesh:
		return d.layout.meshPayloadSize + SABER_PAYLOAD_SIZE
	case KindLight:
		return LIGHT_PAYLOAD_SIZE
	case KindEmitter:
		return EMITTER_PAYLOAD_SIZE
	case KindReference:
		return REFERENCE_PAYLOAD_SIZE
	default:
		return 0
	}
}

func (d *decoder) parsePayload(n *Node, nodeOffset uint32) error {
	size := d.payloadSize(n.Kind)
	if size == 0 {
		return nil
	}
	bs := d.geom.SubBuf(n.Kind.String(), int(nodeOffset)+NODE_HEADER_SIZE).SetSize(size)

	if n.Kind.HasMesh() {
		if err := d.parseMesh(bs, n); err != nil {
			return err
		}
	}

	var err error
	switch n.Kind {
	case KindSkinMesh:
		err = d.parseSkin(bs, n)
	case KindDanglyMesh:
		err = d.parseDangly(bs, n)
	case KindAABBMesh:
		err = d.parseAABB(bs, n)
	case KindSaberMesh:
		err = d.parseSaber(bs, n)
	case KindLight:
		err = d.parseLight(bs, n)
	case KindEmitter:
		err = d.parseEmitter(bs, n)
	case KindReference:
		err = d.parseReference(bs, n)
	}
	if err != nil {
		return err
	}
	bs.VerifySize(bs.Pos())
	return nil
}

func (d *decoder) parseControllers(n *Node, offset, count uint32, data []uint32) error {
	if count == 0 {
		return nil
	}
	bs := d.geom.SubBuf("controllers", int(offset)).SetSize(int(count) * CONTROLLER_ROW_SIZE)

	n.Controllers = make([]Controller, count)
	for i := range n.Controllers {
		c := &n.Controllers[i]

		c.Type = ControllerType(bs.ReadLU32())
		bs.Skip(2) // always 0xFFFF
		rows := int(bs.ReadLU16())
		timeIndex := int(bs.ReadLU16())
		dataIndex := int(bs.ReadLU16())
		columns := bs.ReadByte()
		bs.Skip(3)

		c.Bezier = columns&columnCountBezierBit != 0
		c.Columns = columns &^ byte(columnCountBezierBit)

		per, err := c.valuesPerRow()
		if err != nil {
			return err
		}

		if timeIndex+rows > len(data) || dataIndex+rows*per > len(data) {
			return errors.Wrapf(ErrConsistency,
				"controller type %d keys [%d:%d][%d:%d] outside of data array of %d values",
				c.Type, timeIndex, timeIndex+rows, dataIndex, dataIndex+rows*per, len(data))
		}

		c.Times = make([]float32, rows)
		for j := range c.Times {
			c.Times[j] = f32FromBits(data[timeIndex+j])
		}
		c.Data = make([]uint32, rows*per)
		copy(c.Data, data[dataIndex:dataIndex+rows*per])
	}
	bs.VerifySize(bs.Pos())
	return nil
}

// readArrayDef reads an (offset, used, allocated) array definition triple.
// The used count wins; its top bit is the engine's cache marker, not part of
// the count.
func readArrayDef(bs *utils.BufStack) (offset uint32, count uint32) {
	offset = bs.ReadLU32()
	count = bs.ReadLU32() &^ uint32(COUNT_CACHED_BIT)
	bs.Skip(4) // allocated count
	return offset, count
}

func readVec3(bs *utils.BufStack) mgl32.Vec3 {
	return mgl32.Vec3{bs.ReadLF(), bs.ReadLF(), bs.ReadLF()}
}

func f32FromBits(raw uint32) float32 {
	return math.Float32frombits(raw)
}

// readQuat reads the on-disk w,x,y,z order.
func readQuat(bs *utils.BufStack) mgl32.Quat {
	w := bs.ReadLF()
	return mgl32.Quat{W: w, V: mgl32.Vec3{bs.ReadLF(), bs.ReadLF(), bs.ReadLF()}}
}
