package bplus

import "github.com/cockroachdb/errors"

// splitInternal moves pairs [MinSize, Size) of node into a new right sibling
// and points the moved children at it. The sibling comes back pinned and
// write latched.
func (t *BPlusTree) splitInternal(node *InternalNode) (*InternalNode, error) {
	sibling, err := t.newInternal(node.Parent())
	if err != nil {
		return nil, errors.Wrapf(err, "splitInternal: page %d", node.PageNo())
	}

	split, size := node.MinSize(), node.Size()
	keys := make([][]byte, 0, size-split)
	children := make([]int32, 0, size-split)
	for i := split; i < size; i++ {
		keys = append(keys, node.KeyAt(i))
		children = append(children, node.ChildAt(i))
	}
	sibling.InsertPairs(0, keys, children)
	node.setSize(split)

	for _, child := range children {
		if err := t.reparent(child, sibling.PageNo()); err != nil {
			t.releaseNode(sibling)
			return nil, errors.Wrapf(err, "splitInternal: page %d", node.PageNo())
		}
	}

	t.logSplit("internal", node, sibling)
	return sibling, nil
}

// reparent rewrites the parent pointer of child. It takes no latch: the
// parent field is only read by writers that hold the parent's write latch,
// and the caller holds it.
func (t *BPlusTree) reparent(child, parent int32) error {
	n, err := t.fetchNode(child, latchNone)
	if err != nil {
		return err
	}
	n.SetParent(parent)
	t.releaseNode(n)
	return nil
}
