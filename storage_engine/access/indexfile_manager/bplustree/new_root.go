package bplus

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// newRoot grows the tree by one level above old and newNode. The caller
// still holds the root mutex, which is released here together with every
// retained ancestor.
func (t *BPlusTree) newRoot(ctx *latchContext, old, newNode Node) error {
	if !ctx.rootLatched {
		panic(errors.AssertionFailedf("root %d split without the root latch", old.PageNo()))
	}

	root, err := t.newInternal(InvalidPageNo)
	if err != nil {
		return errors.Wrap(err, "newRoot")
	}
	defer t.releaseNode(root)

	root.InsertPairs(0,
		[][]byte{old.KeyAt(0), newNode.KeyAt(0)},
		[]int32{old.PageNo(), newNode.PageNo()})
	old.SetParent(root.PageNo())
	newNode.SetParent(root.PageNo())

	t.setRootPageNo(root.PageNo())
	ctx.release()

	t.logger.Debug("new root", zap.Int32("root", root.PageNo()),
		zap.Int32("left", old.PageNo()), zap.Int32("right", newNode.PageNo()))
	return nil
}
