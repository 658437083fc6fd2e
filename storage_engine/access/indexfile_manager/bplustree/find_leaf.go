package bplus

import (
	"github.com/cockroachdb/errors"
)

// findLeafPage descends from the root to the leaf responsible for key, or to
// the leftmost leaf when findFirst is set.
//
// OpFind crabs with read latches and never holds more than two. OpInsert and
// OpDelete take write latches; every latched internal node is retained in
// ctx until a safe child is reached, at which point the root mutex and all
// retained ancestors are released. The returned leaf is latched in the mode
// of op and must be released by the caller together with ctx.
func (t *BPlusTree) findLeafPage(key []byte, op Operation, ctx *latchContext, findFirst bool) (*LeafNode, error) {
	mode := latchRead
	if op != OpFind {
		mode = latchWrite
	}

	ctx.lockRoot()
	cur, err := t.fetchNode(t.rootPageNo(), mode)
	if err != nil {
		ctx.unlockRoot()
		return nil, errors.Wrap(err, "findLeafPage: failed to fetch root")
	}
	if op == OpFind || t.isSafe(cur, op) {
		ctx.unlockRoot()
	}

	for {
		internal, ok := cur.(*InternalNode)
		if !ok {
			break
		}

		var childNo int32
		if findFirst {
			childNo = internal.ChildAt(0)
		} else {
			childNo = internal.Lookup(key)
		}

		child, err := t.fetchNode(childNo, mode)
		if err != nil {
			t.releaseNode(internal)
			ctx.release()
			return nil, errors.Wrapf(err, "findLeafPage: failed to fetch child %d of %d", childNo, internal.PageNo())
		}

		if op == OpFind {
			t.releaseNode(internal)
		} else {
			ctx.retain(internal)
			if t.isSafe(child, op) {
				ctx.release()
			}
		}
		cur = child
	}

	return cur.(*LeafNode), nil
}

// isSafe reports whether applying op to n cannot change n's parent.
func (t *BPlusTree) isSafe(n Node, op Operation) bool {
	switch op {
	case OpInsert:
		return n.Size()+1 < n.MaxSize()
	case OpDelete:
		if n.IsRoot() {
			return n.Size()-1 >= 2
		}
		return n.Size()-1 >= n.MinSize()
	default:
		return true
	}
}
