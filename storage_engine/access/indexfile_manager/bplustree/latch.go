package bplus

import (
	"IndexDB/storage_engine/page"
	"IndexDB/types"

	"github.com/cockroachdb/errors"
)

// latchContext is the per-operation latch state of a write traversal: whether
// the root mutex is still held and the write latched ancestors that a split
// may still need. release drops all of it and is safe to call repeatedly.
type latchContext struct {
	tree        *BPlusTree
	op          Operation
	rootLatched bool
	ancestors   []*InternalNode
}

func (t *BPlusTree) newLatchContext(op Operation) *latchContext {
	return &latchContext{tree: t, op: op}
}

func (c *latchContext) lockRoot() {
	c.tree.rootLatch.Lock()
	c.rootLatched = true
}

func (c *latchContext) unlockRoot() {
	if c.rootLatched {
		c.rootLatched = false
		c.tree.rootLatch.Unlock()
	}
}

// retain keeps an exclusively latched ancestor until release.
func (c *latchContext) retain(n *InternalNode) {
	c.ancestors = append(c.ancestors, n)
}

// ancestor returns the retained node for pageNo, or nil.
func (c *latchContext) ancestor(pageNo int32) *InternalNode {
	for _, n := range c.ancestors {
		if n.PageNo() == pageNo {
			return n
		}
	}
	return nil
}

func (c *latchContext) releaseAncestors() {
	for _, n := range c.ancestors {
		c.tree.releaseNode(n)
	}
	c.ancestors = c.ancestors[:0]
}

func (c *latchContext) release() {
	c.releaseAncestors()
	c.unlockRoot()
}

// fetchNode pins pageNo, takes the latch asked for and wraps the page in the
// matching node type. The kind byte is only read under the latch.
func (t *BPlusTree) fetchNode(pageNo int32, mode latchMode) (Node, error) {
	if pageNo < InitRootPageNo || pageNo >= t.numPages() {
		return nil, errors.Wrapf(ErrEntryNotFound, "page %d outside index", pageNo)
	}

	pg, err := t.bufferPool.FetchPage(page.GlobalPageID(t.fileID, pageNo))
	if err != nil {
		return nil, errors.Wrapf(err, "fetchNode: failed to fetch page %d", pageNo)
	}

	h := nodeHandle{page: pg, geo: t.geo, cmp: t.cmp, ids: t}
	switch mode {
	case latchRead:
		h.rlatch()
	case latchWrite:
		h.wlatch()
	}

	if pg.Data[types.PageTypeOffset] != byte(types.PageTypeBPlusNode) {
		t.releaseNode(&h)
		return nil, errors.Wrapf(ErrBadIndexFile, "page %d is not a tree node", pageNo)
	}
	return wrapNode(h), nil
}

// fetchLeaf is fetchNode for callers that need a leaf.
func (t *BPlusTree) fetchLeaf(pageNo int32, mode latchMode) (*LeafNode, error) {
	n, err := t.fetchNode(pageNo, mode)
	if err != nil {
		return nil, err
	}
	leaf, ok := n.(*LeafNode)
	if !ok {
		t.releaseNode(n)
		return nil, errors.Wrapf(ErrEntryNotFound, "page %d is not a leaf", pageNo)
	}
	return leaf, nil
}

// newLeaf allocates a leaf page, returned pinned and write latched.
func (t *BPlusTree) newLeaf(parent, prev, next int32) (*LeafNode, error) {
	h, err := t.newNodePage()
	if err != nil {
		return nil, err
	}
	n := &LeafNode{nodeHandle: h}
	n.init(parent, prev, next)
	return n, nil
}

// newInternal allocates an internal page, returned pinned and write latched.
func (t *BPlusTree) newInternal(parent int32) (*InternalNode, error) {
	h, err := t.newNodePage()
	if err != nil {
		return nil, err
	}
	n := &InternalNode{nodeHandle: h}
	n.init(parent)
	return n, nil
}

func (t *BPlusTree) newNodePage() (nodeHandle, error) {
	pg, err := t.bufferPool.NewPage(t.fileID, types.PageTypeBPlusNode)
	if err != nil {
		return nodeHandle{}, errors.Wrap(err, "failed to allocate node page")
	}

	h := nodeHandle{page: pg, geo: t.geo, cmp: t.cmp, ids: t, dirty: true}
	h.wlatch()

	t.hdrMu.Lock()
	if no := pg.LocalPageNo(); no >= t.hdr.NumPages {
		t.hdr.NumPages = no + 1
	}
	t.hdrMu.Unlock()
	return h, nil
}

// releaseNode drops the latch (if any) and the pin of a node, reporting it
// dirty iff its bytes changed.
func (t *BPlusTree) releaseNode(n interface{ handle() *nodeHandle }) {
	h := n.handle()
	if h.latch != latchNone {
		h.unlatch()
	}
	if err := t.bufferPool.UnpinPage(h.page.ID, h.dirty); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "unpin of page %d", h.PageNo()))
	}
}
