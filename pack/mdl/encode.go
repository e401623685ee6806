package mdl

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/mogaika/odyssey_browser/utils"
)

// The serializer is the parser run backwards: a layout pass walks the tree
// depth-first assigning every block a forward-only offset, then an emit pass
// writes bytes at the now-known positions. Offsets are relative to the end of
// the 12-byte file header, like everywhere else in the format.

type nodeLayout struct {
	headerOffset         uint32
	childrenOffset       uint32
	controllersOffset    uint32
	controllerDataOffset uint32
	controllerData       []uint32
	controllerRows       []controllerRowLayout

	facesOffset        uint32
	indexCountsOffset  uint32
	indexOffsetsOffset uint32
	invCounterOffset   uint32
	indexArrayOffset   uint32
	vertexArrayOffset  uint32
	mdxDataOffset      uint32

	boneMapOffset uint32
	qBonesOffset  uint32
	tBonesOffset  uint32
	garbageOffset uint32

	constraintsOffset uint32

	aabbRootOffset uint32

	saberVerticesOffset  uint32
	saberTexCoordsOffset uint32
	saberNormalsOffset   uint32

	flareSizesOffset       uint32
	flarePositionsOffset   uint32
	flareColorShiftsOffset uint32
	flareTexturesOffset    uint32
	flareTextureOffsets    []uint32
}

type controllerRowLayout struct {
	timeIndex uint16
	dataIndex uint16
}

type encoder struct {
	version Version
	layout  *layout

	names     []string
	nameIndex map[string]uint16

	nodeLayouts map[*Node]*nodeLayout
	aabbOffsets map[*AABBNode]uint32

	nameOffsets      []uint32
	namesBlobOffset  uint32
	animationsOffset uint32
	animationOffsets []uint32
	eventOffsets     []uint32
	rootOffset       uint32

	mdlSize int
	mdxSize int

	mdl []byte
	mdx []byte
}

// Encode serializes the model and its companion vertex data for the given
// target version. It is a pure function of the tree: the same tree always
// yields the same bytes.
func (m *Model) Encode(version Version) (mdlData []byte, mdxData []byte, err error) {
	l, ok := layouts[version]
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnsupportedVariant, "unknown version %d", int(version))
	}
	if m.Root == nil {
		return nil, nil, errors.Wrap(ErrConsistency, "model has no root node")
	}

	e := &encoder{
		version:     version,
		layout:      l,
		nodeLayouts: make(map[*Node]*nodeLayout),
		aabbOffsets: make(map[*AABBNode]uint32),
	}

	e.collectNames(m)
	if err := e.layoutModel(m); err != nil {
		return nil, nil, err
	}

	e.mdl = make([]byte, FILE_HEADER_SIZE+e.mdlSize)
	e.mdx = make([]byte, e.mdxSize)
	e.emitModel(m)

	return e.mdl, e.mdx, nil
}

func align4(off int) int {
	return (off + 3) &^ 3
}

// checkName rejects strings that do not fit their fixed on-disk buffer
// together with the NUL terminator.
func checkName(what, s string, size int) error {
	if len(utils.StringToBytes(s, true)) > size {
		return errors.Wrapf(ErrConsistency, "%s %q does not fit %d bytes", what, s, size)
	}
	return nil
}

func (e *encoder) layoutModel(m *Model) error {
	if len(e.names) > 0x10000 {
		return errors.Wrapf(ErrConsistency, "%d names do not fit 16-bit name ids", len(e.names))
	}
	if err := checkName("model name", m.Name, 32); err != nil {
		return err
	}
	if err := checkName("supermodel name", m.SupermodelName, 32); err != nil {
		return err
	}
	for _, anim := range m.Animations {
		if err := checkName("animation name", anim.Name, 32); err != nil {
			return err
		}
		if err := checkName("animation root name", anim.AnimRoot, 32); err != nil {
			return err
		}
		for _, event := range anim.Events {
			if err := checkName("event name", event.Name, 32); err != nil {
				return err
			}
		}
	}

	off := MODEL_BLOCK_SIZE

	// Name offset array and pool.
	off += 4 * len(e.names)
	e.namesBlobOffset = uint32(off)
	e.nameOffsets = make([]uint32, len(e.names))
	for i, name := range e.names {
		e.nameOffsets[i] = uint32(off)
		off += len(utils.StringToBytes(name, true))
	}
	off = align4(off)

	// Animation offset array sits right after the pool; the derived pool
	// length computation on the read side depends on this adjacency.
	e.animationsOffset = uint32(off)
	off += 4 * len(m.Animations)

	e.rootOffset = uint32(off)
	if err := e.layoutNode(m.Root, &off); err != nil {
		return err
	}

	e.animationOffsets = make([]uint32, len(m.Animations))
	e.eventOffsets = make([]uint32, len(m.Animations))
	for i, anim := range m.Animations {
		e.animationOffsets[i] = uint32(off)
		off += ANIMATION_HEADER_SIZE
		e.eventOffsets[i] = uint32(off)
		off += ANIMATION_EVENT_SIZE * len(anim.Events)
		if anim.Root != nil {
			if err := e.layoutNode(anim.Root, &off); err != nil {
				return errors.WithMessagef(err, "animation %q", anim.Name)
			}
		}
	}

	e.mdlSize = off
	return nil
}

func (e *encoder) layoutNode(n *Node, off *int) error {
	if _, ok := e.nodeLayouts[n]; ok {
		return errors.Wrapf(ErrCycleDetected, "node %q appears in the tree twice", n.Name)
	}
	nl := &nodeLayout{}
	e.nodeLayouts[n] = nl

	if _, ok := kindFlags[n.Kind]; !ok {
		return errors.Wrapf(ErrUnsupportedVariant, "node %q has kind %d", n.Name, int(n.Kind))
	}
	if n.Kind.HasMesh() && n.Mesh == nil {
		return errors.Wrapf(ErrConsistency, "node %q of kind %v has no mesh payload", n.Name, n.Kind)
	}

	nl.headerOffset = uint32(*off)
	*off += NODE_HEADER_SIZE + e.payloadSize(n.Kind)

	nl.childrenOffset = uint32(*off)
	*off += 4 * len(n.Children)

	if err := e.layoutControllers(n, nl, off); err != nil {
		return err
	}
	if err := e.layoutPayload(n, nl, off); err != nil {
		return err
	}

	for _, child := range n.Children {
		if err := e.layoutNode(child, off); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) payloadSize(kind NodeKind) int {
	d := decoder{layout: e.layout}
	return d.payloadSize(kind)
}

func (e *encoder) layoutControllers(n *Node, nl *nodeLayout, off *int) error {
	nl.controllersOffset = uint32(*off)
	*off += CONTROLLER_ROW_SIZE * len(n.Controllers)

	nl.controllerRows = make([]controllerRowLayout, len(n.Controllers))
	for i := range n.Controllers {
		c := &n.Controllers[i]
		per, err := c.valuesPerRow()
		if err != nil {
			return errors.WithMessagef(err, "node %q", n.Name)
		}
		if len(c.Data) != len(c.Times)*per {
			return errors.Wrapf(ErrConsistency,
				"node %q controller type %d has %d values for %d keyframes of %d values each",
				n.Name, c.Type, len(c.Data), len(c.Times), per)
		}

		nl.controllerRows[i].timeIndex = uint16(len(nl.controllerData))
		for _, t := range c.Times {
			nl.controllerData = append(nl.controllerData, math.Float32bits(t))
		}
		nl.controllerRows[i].dataIndex = uint16(len(nl.controllerData))
		nl.controllerData = append(nl.controllerData, c.Data...)
	}
	if len(nl.controllerData) >= 0x10000 {
		return errors.Wrapf(ErrConsistency,
			"node %q controller data of %d values does not fit 16-bit key indices", n.Name, len(nl.controllerData))
	}

	nl.controllerDataOffset = uint32(*off)
	*off += 4 * len(nl.controllerData)
	return nil
}

func (e *encoder) layoutPayload(n *Node, nl *nodeLayout, off *int) error {
	if n.Kind.HasMesh() {
		if err := e.layoutMesh(n, nl, off); err != nil {
			return err
		}
	}

	switch n.Kind {
	case KindSkinMesh:
		if n.Skin == nil {
			return errors.Wrapf(ErrConsistency, "skinned node %q has no skin payload", n.Name)
		}
		s := n.Skin
		nl.boneMapOffset = uint32(*off)
		*off += 4 * len(s.BoneMap)
		nl.qBonesOffset = uint32(*off)
		*off += 16 * len(s.QBones)
		nl.tBonesOffset = uint32(*off)
		*off += 12 * len(s.TBones)
		nl.garbageOffset = uint32(*off)
		*off += 4 * len(s.Garbage)

	case KindDanglyMesh:
		if n.Dangly == nil {
			return errors.Wrapf(ErrConsistency, "dangly node %q has no constraint payload", n.Name)
		}
		nl.constraintsOffset = uint32(*off)
		*off += 4 * len(n.Dangly.Constraints)

	case KindAABBMesh:
		if n.AABB == nil {
			return errors.Wrapf(ErrConsistency, "walkmesh node %q has no collision tree", n.Name)
		}
		nl.aabbRootOffset = uint32(*off)
		if err := e.layoutAABB(n, n.AABB, off); err != nil {
			return err
		}

	case KindSaberMesh:
		if n.Saber == nil {
			return errors.Wrapf(ErrConsistency, "saber node %q has no blade payload", n.Name)
		}
		s, vc := n.Saber, n.Mesh.VertexCount
		if len(s.Vertices) != vc*12 || len(s.TexCoords) != vc*8 || len(s.Normals) != vc*12 {
			return errors.Wrapf(ErrConsistency,
				"saber node %q blade blobs (%d/%d/%d bytes) do not match %d vertices",
				n.Name, len(s.Vertices), len(s.TexCoords), len(s.Normals), vc)
		}
		nl.saberVerticesOffset = uint32(*off)
		*off += len(s.Vertices)
		nl.saberTexCoordsOffset = uint32(*off)
		*off += len(s.TexCoords)
		nl.saberNormalsOffset = uint32(*off)
		*off += len(s.Normals)

	case KindLight:
		if n.Light == nil {
			return errors.Wrapf(ErrConsistency, "light node %q has no light payload", n.Name)
		}
		flares := n.Light.Flares
		nl.flareSizesOffset = uint32(*off)
		*off += 4 * len(flares)
		nl.flarePositionsOffset = uint32(*off)
		*off += 4 * len(flares)
		nl.flareColorShiftsOffset = uint32(*off)
		*off += 12 * len(flares)
		nl.flareTexturesOffset = uint32(*off)
		*off += 4 * len(flares)
		nl.flareTextureOffsets = make([]uint32, len(flares))
		for i, flare := range flares {
			if err := checkName("flare texture name", flare.Texture, 32); err != nil {
				return err
			}
			nl.flareTextureOffsets[i] = uint32(*off)
			*off += len(utils.StringToBytes(flare.Texture, true))
		}
		*off = align4(*off)

	case KindEmitter:
		if n.Emitter == nil {
			return errors.Wrapf(ErrConsistency, "emitter node %q has no emitter payload", n.Name)
		}
		em := n.Emitter
		for _, name := range []string{em.Update, em.Render, em.Blend, em.Texture, em.Chunk, em.DepthTexture} {
			if err := checkName("emitter name", name, 32); err != nil {
				return err
			}
		}
	case KindReference:
		if n.Reference == nil {
			return errors.Wrapf(ErrConsistency, "reference node %q has no reference payload", n.Name)
		}
		if err := checkName("reference model name", n.Reference.Model, 32); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) layoutMesh(n *Node, nl *nodeLayout, off *int) error {
	m := n.Mesh
	if m.VertexCount > 0xFFFF {
		return errors.Wrapf(ErrConsistency, "mesh %q has %d vertices, limit is 65535", n.Name, m.VertexCount)
	}
	if len(m.Vertices) != m.VertexCount {
		return errors.Wrapf(ErrConsistency,
			"mesh %q declares %d vertices but carries %d positions", n.Name, m.VertexCount, len(m.Vertices))
	}
	if err := checkName("texture name", m.Texture, 32); err != nil {
		return err
	}
	if err := checkName("lightmap name", m.Lightmap, 32); err != nil {
		return err
	}

	nl.facesOffset = uint32(*off)
	*off += FACE_SIZE * len(m.Faces)
	nl.indexCountsOffset = uint32(*off)
	*off += 4
	nl.indexOffsetsOffset = uint32(*off)
	*off += 4
	nl.invCounterOffset = uint32(*off)
	*off += 4
	nl.indexArrayOffset = uint32(*off)
	*off = align4(*off + 6*len(m.Faces))
	nl.vertexArrayOffset = uint32(*off)
	*off += 12 * len(m.Vertices)

	if len(m.MDXData) == 0 {
		nl.mdxDataOffset = NODE_OFFSET_NONE
		return nil
	}
	if len(m.MDXData) != int(m.View.Stride)*m.VertexCount {
		return errors.Wrapf(ErrConsistency,
			"mesh %q vertex data is %d bytes, stride 0x%x times %d vertices wants %d",
			n.Name, len(m.MDXData), m.View.Stride, m.VertexCount, int(m.View.Stride)*m.VertexCount)
	}
	nl.mdxDataOffset = uint32(e.mdxSize)
	e.mdxSize += len(m.MDXData)
	return nil
}

func (e *encoder) layoutAABB(n *Node, a *AABBNode, off *int) error {
	if _, ok := e.aabbOffsets[a]; ok {
		return errors.Wrapf(ErrCycleDetected, "collision tree of %q is not a tree", n.Name)
	}
	if leaf := a.FaceIndex != -1; leaf == (a.Left != nil || a.Right != nil) ||
		(a.Left == nil) != (a.Right == nil) {
		return errors.Wrapf(ErrConsistency,
			"collision node of %q violates the leaf invariant (face %d)", n.Name, a.FaceIndex)
	}

	e.aabbOffsets[a] = uint32(*off)
	*off += AABB_NODE_SIZE
	if a.Left != nil {
		if err := e.layoutAABB(n, a.Left, off); err != nil {
			return err
		}
		if err := e.layoutAABB(n, a.Right, off); err != nil {
			return err
		}
	}
	return nil
}

// blockWriter emits little-endian fields at a precomputed geometry offset.
// Layout and emit disagreeing about a size is a bug, so it panics on overrun
// like BufStack does.
type blockWriter struct {
	buf []byte
	pos int
}

// at positions a writer at an offset relative to the geometry start.
func (e *encoder) at(offset uint32) *blockWriter {
	return &blockWriter{buf: e.mdl, pos: FILE_HEADER_SIZE + int(offset)}
}

func (w *blockWriter) u8(v byte) {
	w.buf[w.pos] = v
	w.pos++
}

func (w *blockWriter) bool8(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *blockWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.pos:], v)
	w.pos += 2
}

func (w *blockWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

func (w *blockWriter) bool32(v bool) {
	if v {
		w.u32(1)
	} else {
		w.u32(0)
	}
}

func (w *blockWriter) i32(v int32) {
	w.u32(uint32(v))
}

func (w *blockWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *blockWriter) vec3(v mgl32.Vec3) {
	w.f32(v[0])
	w.f32(v[1])
	w.f32(v[2])
}

// quat writes the on-disk w,x,y,z order.
func (w *blockWriter) quat(q mgl32.Quat) {
	w.f32(q.W)
	w.f32(q.V[0])
	w.f32(q.V[1])
	w.f32(q.V[2])
}

func (w *blockWriter) str(s string, size int) {
	copy(w.buf[w.pos:w.pos+size], utils.StringToBytesBuffer(s, size, true))
	w.pos += size
}

func (w *blockWriter) zstr(s string) {
	bs := utils.StringToBytes(s, true)
	copy(w.buf[w.pos:], bs)
	w.pos += len(bs)
}

func (w *blockWriter) bytes(b []byte) {
	copy(w.buf[w.pos:], b)
	w.pos += len(b)
}

func (w *blockWriter) zeros(n int) {
	w.pos += n
}

func (w *blockWriter) arrayDef(offset uint32, count int) {
	w.u32(offset)
	w.u32(uint32(count))
	w.u32(uint32(count))
}

func (e *encoder) emitModel(m *Model) {
	// File header.
	fw := &blockWriter{buf: e.mdl}
	fw.u32(0)
	fw.u32(uint32(e.mdlSize))
	fw.u32(uint32(e.mdxSize))

	nodeCount := len(m.Nodes())

	w := e.at(0)

	// Geometry header.
	w.u32(e.layout.modelFnPtr1)
	w.u32(e.layout.modelFnPtr2)
	w.str(m.Name, 32)
	w.u32(e.rootOffset)
	w.u32(uint32(nodeCount))
	w.zeros(24)
	w.zeros(4)
	w.u8(GEOMETRY_TYPE_MODEL)
	w.zeros(3)

	// Model header.
	w.u8(uint8(m.Classification))
	w.u8(m.SubClassification)
	w.u8(m.Unk02)
	w.bool8(m.AffectedByFog)
	w.u32(m.ChildModelCount)
	w.arrayDef(e.animationsOffset, len(m.Animations))
	w.u32(0)
	w.vec3(m.BoundingBox[0])
	w.vec3(m.BoundingBox[1])
	w.f32(m.Radius)
	w.f32(m.AnimationScale)
	w.str(m.SupermodelName, 32)

	// Names header.
	w.u32(e.rootOffset)
	w.u32(0)
	w.u32(uint32(e.mdxSize))
	w.u32(0)
	w.arrayDef(uint32(MODEL_BLOCK_SIZE), len(e.names))

	// Name table.
	for i, name := range e.names {
		w.u32(e.nameOffsets[i])
		nw := e.at(e.nameOffsets[i])
		nw.zstr(name)
	}

	// Animation offset array.
	aw := e.at(e.animationsOffset)
	for _, animationOffset := range e.animationOffsets {
		aw.u32(animationOffset)
	}

	e.emitNode(m.Root, nil, e.rootOffset)

	for i, anim := range m.Animations {
		e.emitAnimation(anim, i)
	}
}

func (e *encoder) emitAnimation(a *Animation, index int) {
	w := e.at(e.animationOffsets[index])

	rootOffset := uint32(NODE_OFFSET_NULL)
	nodeCount := 0
	if a.Root != nil {
		rootOffset = e.nodeLayouts[a.Root].headerOffset
		nodeCount = countNodes(a.Root)
	}

	w.u32(e.layout.animFnPtr1)
	w.u32(e.layout.animFnPtr2)
	w.str(a.Name, 32)
	w.u32(rootOffset)
	w.u32(uint32(nodeCount))
	w.zeros(24)
	w.zeros(4)
	w.u8(GEOMETRY_TYPE_ANIMATION)
	w.zeros(3)

	w.f32(a.Length)
	w.f32(a.TransitionTime)
	w.str(a.AnimRoot, 32)
	w.arrayDef(e.eventOffsets[index], len(a.Events))
	w.zeros(4)

	ew := e.at(e.eventOffsets[index])
	for _, event := range a.Events {
		ew.f32(event.Time)
		ew.str(event.Name, 32)
	}

	if a.Root != nil {
		e.emitNode(a.Root, nil, rootOffset)
	}
}

func countNodes(n *Node) int {
	count := 1
	for _, child := range n.Children {
		count += countNodes(child)
	}
	return count
}

func (e *encoder) emitNode(n *Node, parent *Node, rootOffset uint32) {
	nl := e.nodeLayouts[n]
	w := e.at(nl.headerOffset)

	parentOffset := uint32(NODE_OFFSET_NULL)
	if parent != nil {
		parentOffset = e.nodeLayouts[parent].headerOffset
	}

	w.u16(kindFlags[n.Kind])
	w.u16(n.NodeNumber)
	w.u16(e.nameIndex[n.Name])
	w.u16(0)
	w.u32(rootOffset)
	w.u32(parentOffset)
	w.vec3(n.Position)
	w.quat(n.Orientation)
	w.arrayDef(nl.childrenOffset, len(n.Children))
	w.arrayDef(nl.controllersOffset, len(n.Controllers))
	w.arrayDef(nl.controllerDataOffset, len(nl.controllerData))

	e.emitPayload(n, nl, w)

	cw := e.at(nl.childrenOffset)
	for _, child := range n.Children {
		cw.u32(e.nodeLayouts[child].headerOffset)
	}

	rw := e.at(nl.controllersOffset)
	for i := range n.Controllers {
		c := &n.Controllers[i]
		columns := c.Columns
		if c.Bezier {
			columns |= columnCountBezierBit
		}
		rw.u32(uint32(c.Type))
		rw.u16(0xFFFF)
		rw.u16(uint16(len(c.Times)))
		rw.u16(nl.controllerRows[i].timeIndex)
		rw.u16(nl.controllerRows[i].dataIndex)
		rw.u8(columns)
		rw.zeros(3)
	}

	dw := e.at(nl.controllerDataOffset)
	for _, v := range nl.controllerData {
		dw.u32(v)
	}

	for _, child := range n.Children {
		e.emitNode(child, n, rootOffset)
	}
}

func (e *encoder) emitPayload(n *Node, nl *nodeLayout, w *blockWriter) {
	if n.Kind.HasMesh() {
		e.emitMesh(n, nl, w)
	}

	switch n.Kind {
	case KindSkinMesh:
		s := n.Skin
		w.zeros(12)
		w.i32(n.Mesh.View.Weights)
		w.i32(n.Mesh.View.BoneIndices)
		w.u32(nl.boneMapOffset)
		w.u32(uint32(len(s.BoneMap)))
		w.arrayDef(nl.qBonesOffset, len(s.QBones))
		w.arrayDef(nl.tBonesOffset, len(s.TBones))
		w.arrayDef(nl.garbageOffset, len(s.Garbage))
		for _, bone := range s.BoneSerializationOrder {
			w.u16(bone)
		}
		w.zeros(4)

		bw := e.at(nl.boneMapOffset)
		for _, bone := range s.BoneMap {
			bw.u32(boneMapFloat(bone))
		}
		qw := e.at(nl.qBonesOffset)
		for _, q := range s.QBones {
			qw.quat(q)
		}
		tw := e.at(nl.tBonesOffset)
		for _, t := range s.TBones {
			tw.vec3(t)
		}
		gw := e.at(nl.garbageOffset)
		for _, g := range s.Garbage {
			gw.f32(g)
		}

	case KindDanglyMesh:
		dm := n.Dangly
		w.arrayDef(nl.constraintsOffset, len(dm.Constraints))
		w.f32(dm.Displacement)
		w.f32(dm.Tightness)
		w.f32(dm.Period)
		w.i32(dm.DataOffset)

		cw := e.at(nl.constraintsOffset)
		for _, c := range dm.Constraints {
			cw.f32(c)
		}

	case KindAABBMesh:
		w.u32(nl.aabbRootOffset)
		e.emitAABB(n.AABB)

	case KindSaberMesh:
		s := n.Saber
		w.u32(nl.saberVerticesOffset)
		w.u32(nl.saberTexCoordsOffset)
		w.u32(nl.saberNormalsOffset)
		w.u32(s.Flags[0])
		w.u32(s.Flags[1])

		e.at(nl.saberVerticesOffset).bytes(s.Vertices)
		e.at(nl.saberTexCoordsOffset).bytes(s.TexCoords)
		e.at(nl.saberNormalsOffset).bytes(s.Normals)

	case KindLight:
		l := n.Light
		w.f32(l.FlareRadius)
		w.arrayDef(0, 0)
		w.arrayDef(nl.flareSizesOffset, len(l.Flares))
		w.arrayDef(nl.flarePositionsOffset, len(l.Flares))
		w.arrayDef(nl.flareColorShiftsOffset, len(l.Flares))
		w.arrayDef(nl.flareTexturesOffset, len(l.Flares))
		w.u32(l.Priority)
		w.bool32(l.AmbientOnly)
		w.u32(l.DynamicType)
		w.bool32(l.AffectDynamic)
		w.bool32(l.Shadow)
		w.bool32(l.Flare)
		w.bool32(l.Fading)

		sw := e.at(nl.flareSizesOffset)
		pw := e.at(nl.flarePositionsOffset)
		cw := e.at(nl.flareColorShiftsOffset)
		tw := e.at(nl.flareTexturesOffset)
		for i, flare := range l.Flares {
			sw.f32(flare.Size)
			pw.f32(flare.Position)
			cw.vec3(flare.ColorShift)
			tw.u32(nl.flareTextureOffsets[i])
			e.at(nl.flareTextureOffsets[i]).zstr(flare.Texture)
		}

	case KindEmitter:
		em := n.Emitter
		w.f32(em.DeadSpace)
		w.f32(em.BlastRadius)
		w.f32(em.BlastLength)
		w.u32(em.BranchCount)
		w.f32(em.ControlPointSmoothing)
		w.u32(em.XGrid)
		w.u32(em.YGrid)
		w.u32(em.SpawnType)
		w.str(em.Update, 32)
		w.str(em.Render, 32)
		w.str(em.Blend, 32)
		w.str(em.Texture, 32)
		w.str(em.Chunk, 32)
		w.bool32(em.TwoSided)
		w.bool32(em.Loop)
		w.u16(em.RenderOrder)
		w.bool8(em.FrameBlending)
		w.str(em.DepthTexture, 32)
		w.zeros(1)

	case KindReference:
		w.str(n.Reference.Model, 32)
		w.bool32(n.Reference.Reattachable)
	}
}

func (e *encoder) emitMesh(n *Node, nl *nodeLayout, w *blockWriter) {
	m := n.Mesh

	w.zeros(8)
	w.arrayDef(nl.facesOffset, len(m.Faces))
	w.vec3(m.BoundingBox[0])
	w.vec3(m.BoundingBox[1])
	w.f32(m.Radius)
	w.vec3(m.AveragePoint)
	w.vec3(m.Diffuse)
	w.vec3(m.Ambient)
	w.u32(m.TransparencyHint)
	w.str(m.Texture, 32)
	w.str(m.Lightmap, 32)
	w.zeros(36)
	w.arrayDef(nl.indexCountsOffset, 1)
	w.arrayDef(nl.indexOffsetsOffset, 1)
	w.arrayDef(nl.invCounterOffset, 1)
	w.zeros(12)
	w.zeros(8)
	w.bool32(m.AnimateUV)
	w.f32(m.UVDirectionX)
	w.f32(m.UVDirectionY)
	w.f32(m.UVJitter)
	w.f32(m.UVJitterSpeed)
	w.u32(m.View.Stride)
	w.u32(m.View.Bitmap)
	w.i32(m.View.Position)
	w.i32(m.View.Normal)
	w.i32(m.View.Color)
	for _, texCoordOffset := range m.View.TexCoord {
		w.i32(texCoordOffset)
	}
	w.i32(m.View.Tangent)
	w.u16(uint16(m.VertexCount))
	w.u16(m.TextureCount)
	w.bool8(m.HasLightmap)
	w.bool8(m.RotateTexture)
	w.bool8(m.BackgroundGeometry)
	w.bool8(m.Shadow)
	w.bool8(m.Beaming)
	w.bool8(m.Render)
	w.zeros(2)

	if e.version == V2 {
		w.bool8(m.DirtEnabled)
		w.zeros(1)
		w.u16(m.DirtTexture)
		w.u16(m.DirtCoordSpace)
		w.bool8(m.HideInHolograms)
		w.zeros(1)
	}

	w.f32(m.TotalArea)
	w.zeros(4)
	w.u32(nl.mdxDataOffset)
	w.u32(nl.vertexArrayOffset)

	fw := e.at(nl.facesOffset)
	for i := range m.Faces {
		f := &m.Faces[i]
		fw.vec3(f.Normal)
		fw.f32(f.Distance)
		fw.u32(f.Material)
		for _, a := range f.Adjacent {
			fw.u16(a)
		}
		for _, index := range f.Indices {
			fw.u16(index)
		}
	}

	e.at(nl.indexCountsOffset).u32(uint32(3 * len(m.Faces)))
	e.at(nl.indexOffsetsOffset).u32(nl.indexArrayOffset)
	e.at(nl.invCounterOffset).u32(m.InvertedCounter)
	iw := e.at(nl.indexArrayOffset)
	for i := range m.Faces {
		for _, index := range m.Faces[i].Indices {
			iw.u16(index)
		}
	}

	vw := e.at(nl.vertexArrayOffset)
	for _, v := range m.Vertices {
		vw.vec3(v)
	}

	if nl.mdxDataOffset != NODE_OFFSET_NONE {
		copy(e.mdx[nl.mdxDataOffset:], m.MDXData)
	}
}

func (e *encoder) emitAABB(a *AABBNode) {
	w := e.at(e.aabbOffsets[a])

	leftOffset, rightOffset := uint32(NODE_OFFSET_NULL), uint32(NODE_OFFSET_NULL)
	if a.Left != nil {
		leftOffset = e.aabbOffsets[a.Left]
		rightOffset = e.aabbOffsets[a.Right]
	}

	w.vec3(a.BoundingBox[0])
	w.vec3(a.BoundingBox[1])
	w.u32(leftOffset)
	w.u32(rightOffset)
	w.i32(a.FaceIndex)
	w.u32(a.MostSignificantPlane)

	if a.Left != nil {
		e.emitAABB(a.Left)
		e.emitAABB(a.Right)
	}
}
