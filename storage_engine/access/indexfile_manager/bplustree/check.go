package bplus

import (
	"github.com/cockroachdb/errors"
)

// CheckIntegrity walks the whole tree and returns an assertion error for the
// first broken structural invariant:
//
//   - internal keys ascend and key[i] (i > 0) is the smallest key under child[i]
//   - every node points back at its parent
//   - leaf directories ascend, and keys keep ascending across leaves
//   - prev/next links are symmetric and the header's first/last leaf match
//   - all leaves sit at the same depth
//
// It must not run concurrently with writers.
func (t *BPlusTree) CheckIntegrity() error {
	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()

	c := &checker{tree: t, leafDepth: -1}
	if _, err := c.walk(t.rootPageNo(), InvalidPageNo, 0); err != nil {
		return err
	}
	return c.checkChain()
}

type checker struct {
	tree      *BPlusTree
	leafDepth int
	leaves    []int32
	lastKey   []byte
}

type nodeSnapshot struct {
	leaf     bool
	parent   int32
	keys     [][]byte
	children []int32
	prev     int32
	next     int32
}

func (c *checker) snapshot(pageNo int32) (nodeSnapshot, error) {
	n, err := c.tree.fetchNode(pageNo, latchRead)
	if err != nil {
		return nodeSnapshot{}, err
	}
	defer c.tree.releaseNode(n)

	s := nodeSnapshot{leaf: n.IsLeaf(), parent: n.Parent(), prev: InvalidPageNo, next: InvalidPageNo}
	for i := 0; i < n.Size(); i++ {
		s.keys = append(s.keys, append([]byte(nil), n.KeyAt(i)...))
	}
	switch node := n.(type) {
	case *InternalNode:
		for i := 0; i < node.Size(); i++ {
			s.children = append(s.children, node.ChildAt(i))
		}
	case *LeafNode:
		s.prev, s.next = node.Prev(), node.Next()
	}
	return s, nil
}

// walk checks the subtree at pageNo and returns its smallest key, nil for
// an empty leaf.
func (c *checker) walk(pageNo, parent int32, depth int) ([]byte, error) {
	s, err := c.snapshot(pageNo)
	if err != nil {
		return nil, errors.Wrapf(err, "CheckIntegrity: page %d", pageNo)
	}
	if s.parent != parent {
		return nil, errors.AssertionFailedf("page %d: parent is %d, reached from %d", pageNo, s.parent, parent)
	}

	cmp := c.tree.cmp
	if s.leaf {
		if c.leafDepth == -1 {
			c.leafDepth = depth
		} else if c.leafDepth != depth {
			return nil, errors.AssertionFailedf("leaf %d at depth %d, other leaves at %d", pageNo, depth, c.leafDepth)
		}
		if len(s.keys) == 0 && parent != InvalidPageNo {
			return nil, errors.AssertionFailedf("leaf %d is empty but not the root", pageNo)
		}
		for _, key := range s.keys {
			if c.lastKey != nil && cmp(c.lastKey, key) >= 0 {
				return nil, errors.AssertionFailedf("leaf %d: key %s not above previous key %s", pageNo,
					FormatKey(c.tree.hdr.Columns, key), FormatKey(c.tree.hdr.Columns, c.lastKey))
			}
			c.lastKey = key
		}
		c.leaves = append(c.leaves, pageNo)
		if len(s.keys) == 0 {
			return nil, nil
		}
		return s.keys[0], nil
	}

	if len(s.keys) < 2 && parent == InvalidPageNo {
		return nil, errors.AssertionFailedf("internal root %d has %d children", pageNo, len(s.keys))
	}
	if len(s.keys) == 0 {
		return nil, errors.AssertionFailedf("internal node %d is empty", pageNo)
	}

	var first []byte
	for i, child := range s.children {
		// key 0 is never routed on and may be stale
		if i > 1 && cmp(s.keys[i-1], s.keys[i]) >= 0 {
			return nil, errors.AssertionFailedf("internal node %d: keys %d and %d out of order", pageNo, i-1, i)
		}
		childMin, err := c.walk(child, pageNo, depth+1)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			first = childMin
			continue
		}
		if childMin == nil || cmp(s.keys[i], childMin) != 0 {
			return nil, errors.AssertionFailedf("internal node %d: separator %d is %s, child %d starts at %s",
				pageNo, i, FormatKey(c.tree.hdr.Columns, s.keys[i]), child, c.formatOrNil(childMin))
		}
	}
	return first, nil
}

func (c *checker) formatOrNil(key []byte) string {
	if key == nil {
		return "<empty>"
	}
	return FormatKey(c.tree.hdr.Columns, key)
}

// checkChain compares the leaf chain with the leaves in tree order.
func (c *checker) checkChain() error {
	t := c.tree
	if first := t.firstLeaf(); len(c.leaves) == 0 || c.leaves[0] != first {
		return errors.AssertionFailedf("header first leaf %d, tree starts at %v", first, c.leaves)
	}
	if last := t.lastLeaf(); c.leaves[len(c.leaves)-1] != last {
		return errors.AssertionFailedf("header last leaf %d, tree ends at %d", last, c.leaves[len(c.leaves)-1])
	}

	for i, pageNo := range c.leaves {
		s, err := c.snapshot(pageNo)
		if err != nil {
			return errors.Wrapf(err, "CheckIntegrity: leaf %d", pageNo)
		}
		wantPrev, wantNext := InvalidPageNo, InvalidPageNo
		if i > 0 {
			wantPrev = c.leaves[i-1]
		}
		if i+1 < len(c.leaves) {
			wantNext = c.leaves[i+1]
		}
		if s.prev != wantPrev || s.next != wantNext {
			return errors.AssertionFailedf("leaf %d: prev=%d next=%d, want prev=%d next=%d",
				pageNo, s.prev, s.next, wantPrev, wantNext)
		}
	}
	return nil
}
