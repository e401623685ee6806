package mdl

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/mogaika/odyssey_browser/utils"
)

// Light color, radius and multiplier animate through controllers; the fixed
// payload carries the static switches and the lens flare list.
type Light struct {
	FlareRadius float32

	Priority      uint32
	AmbientOnly   bool
	DynamicType   uint32
	AffectDynamic bool
	Shadow        bool
	Flare         bool
	Fading        bool

	Flares []Flare
}

type Flare struct {
	Size       float32
	Position   float32
	ColorShift mgl32.Vec3
	Texture    string
}

func (d *decoder) parseLight(bs *utils.BufStack, n *Node) error {
	l := &Light{}
	n.Light = l

	l.FlareRadius = bs.ReadLF()
	bs.Skip(12) // unused array def

	sizesOffset, sizesCount := readArrayDef(bs)
	positionsOffset, positionsCount := readArrayDef(bs)
	colorShiftsOffset, colorShiftsCount := readArrayDef(bs)
	texturesOffset, texturesCount := readArrayDef(bs)

	l.Priority = bs.ReadLU32()
	l.AmbientOnly = bs.ReadLU32() != 0
	l.DynamicType = bs.ReadLU32()
	l.AffectDynamic = bs.ReadLU32() != 0
	l.Shadow = bs.ReadLU32() != 0
	l.Flare = bs.ReadLU32() != 0
	l.Fading = bs.ReadLU32() != 0

	if sizesCount != positionsCount || sizesCount != colorShiftsCount || sizesCount != texturesCount {
		return errors.Wrapf(ErrConsistency,
			"flare arrays of %q disagree: %d sizes, %d positions, %d colorshifts, %d textures",
			n.Name, sizesCount, positionsCount, colorShiftsCount, texturesCount)
	}
	if sizesCount == 0 {
		return nil
	}

	sizes := d.geom.SubBuf("flaresizes", int(sizesOffset)).SetSize(int(sizesCount) * 4)
	positions := d.geom.SubBuf("flarepositions", int(positionsOffset)).SetSize(int(positionsCount) * 4)
	colorShifts := d.geom.SubBuf("flarecolorshifts", int(colorShiftsOffset)).SetSize(int(colorShiftsCount) * 12)
	textures := d.geom.SubBuf("flaretextures", int(texturesOffset)).SetSize(int(texturesCount) * 4)

	l.Flares = make([]Flare, sizesCount)
	for i := range l.Flares {
		f := &l.Flares[i]
		f.Size = sizes.ReadLF()
		f.Position = positions.ReadLF()
		f.ColorShift = readVec3(colorShifts)

		textureOffset := textures.ReadLU32()
		if int(textureOffset) >= d.geom.Size() {
			return errors.Wrapf(ErrConsistency,
				"flare %d of %q names a texture at 0x%x past the geometry end 0x%x",
				i, n.Name, textureOffset, d.geom.Size())
		}
		tb := d.geom.SubBuf("flaretexture", int(textureOffset)).SetSize(d.geom.Size() - int(textureOffset))
		f.Texture = tb.ReadZString(32)
	}
	return nil
}
