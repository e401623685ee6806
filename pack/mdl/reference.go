package mdl

import (
	"github.com/mogaika/odyssey_browser/utils"
)

// Reference points at another model by name. Resolving it against whatever
// archive the model came from is the caller's job.
type Reference struct {
	Model        string
	Reattachable bool
}

func (d *decoder) parseReference(bs *utils.BufStack, n *Node) error {
	r := &Reference{}
	n.Reference = r

	r.Model = bs.ReadStringBuffer(32)
	r.Reattachable = bs.ReadLU32() != 0
	return nil
}
