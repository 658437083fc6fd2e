package bplus

import "github.com/cockroachdb/errors"

// splitLeaf moves the upper half [MinSize, Size) of leaf into a new right
// sibling and relinks the leaf chain. The sibling comes back pinned and
// write latched. The right neighbour, if any, is latched left to right
// while its prev pointer changes.
func (t *BPlusTree) splitLeaf(leaf *LeafNode) (*LeafNode, error) {
	oldNext := leaf.Next()

	var neighbour *LeafNode
	if oldNext != InvalidPageNo {
		n, err := t.fetchLeaf(oldNext, latchWrite)
		if err != nil {
			return nil, errors.Wrapf(err, "splitLeaf: failed to fetch right neighbour %d", oldNext)
		}
		neighbour = n
		defer t.releaseNode(neighbour)
	}

	sibling, err := t.newLeaf(leaf.Parent(), leaf.PageNo(), oldNext)
	if err != nil {
		return nil, errors.Wrapf(err, "splitLeaf: page %d", leaf.PageNo())
	}

	split := leaf.MinSize()
	sibling.InsertContinuousRecords(0, leaf, split, leaf.Size()-split)
	leaf.truncate(split)

	leaf.SetNext(sibling.PageNo())
	if neighbour != nil {
		neighbour.SetPrev(sibling.PageNo())
	} else {
		t.setLastLeaf(sibling.PageNo())
	}

	t.logSplit("leaf", leaf, sibling)
	return sibling, nil
}
