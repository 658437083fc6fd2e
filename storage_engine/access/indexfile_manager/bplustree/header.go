package bplus

import (
	"IndexDB/types"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

/*
On-disk layout of an index file.

	page 0   IndexFileHeader (file metadata)
	page 1   initial root, a leaf
	page 2.. leaves and internal nodes created by splits

Every page keeps the common 9 byte prefix (8 byte LSN + page type stamp), the
index structures start right after it.

IndexFileHeader (page 0), little endian:

	magic            uint32
	version          uint16
	numPages         int32
	rootPage         int32
	keyLen           int32
	treeOrder        int32
	maxRecords       int32   per leaf
	recordLen        int32   record header + payload
	firstLeaf        int32
	lastLeaf         int32
	nextRecordID     uint64
	numCols          uint16
	numCols x [ type uint8 | len uint16 ]

PageHeader (every node page), PageHeaderSize bytes:

	9   isLeaf             uint8
	10  parent             int32
	14  numKeys            int32   internal: keys == children
	18  numRecords         int32   leaf: live (not tombstoned) records
	22  totRecords         int32   leaf: directory entries
	26  freeSpaceOffset    int32   bump pointer into the record area
	30  firstDeletedOffset int32   head of the free slot chain
	34  prevPage           int32   leaf chain
	38  nextPage           int32   leaf chain
	42  reserved up to 48
*/

const (
	InvalidPageNo  int32 = -1
	HeaderPageNo   int32 = 0
	InitRootPageNo int32 = 1

	// MaxIndexKeyLen bounds the total width of a composite key.
	MaxIndexKeyLen = 512

	headerMagic   uint32 = 0x49445842 // "IDXB"
	headerVersion uint16 = 1
	maxKeyColumns        = 32
)

const (
	offIsLeaf       = types.PageCommonHeader
	offParent       = offIsLeaf + 1
	offNumKeys      = offParent + 4
	offNumRecords   = offNumKeys + 4
	offTotRecords   = offNumRecords + 4
	offFreeSpace    = offTotRecords + 4
	offFirstDeleted = offFreeSpace + 4
	offPrevPage     = offFirstDeleted + 4
	offNextPage     = offPrevPage + 4

	PageHeaderSize = 48
)

/*
Record header, in front of every record payload of a leaf:

	0  flags      uint8   bit 0 = tombstone
	1  reserved   3 bytes
	4  nextFree   int32   same-page free chain, InvalidPageNo when unused
	8  recordID   uint64
*/
const (
	recFlags    = 0
	recNextFree = 4
	recID       = 8

	RecordHeaderSize = 16

	flagDeleted = 1 << 0
)

// IndexFileHeader is the in-memory copy of page 0.
type IndexFileHeader struct {
	NumPages          int32
	RootPage          int32
	Columns           []types.ColumnMeta
	KeyLen            int32
	TreeOrder         int32
	MaxRecordsPerLeaf int32
	RecordLen         int32
	FirstLeaf         int32
	LastLeaf          int32
	NextRecordID      uint64
}

// PageHeader is the decoded form of a node page header. The node accessors
// read and write the fields in place; this struct is for inspection.
type PageHeader struct {
	Parent             int32
	IsLeaf             bool
	NumKeys            int32
	NumRecords         int32
	TotRecords         int32
	FreeSpaceOffset    int32
	FirstDeletedOffset int32
	PrevPage           int32
	NextPage           int32
}

// PayloadLen is the width of the caller visible part of a record.
func (h *IndexFileHeader) PayloadLen() int {
	return int(h.RecordLen) - RecordHeaderSize
}

func (h *IndexFileHeader) clone() *IndexFileHeader {
	c := *h
	c.Columns = append([]types.ColumnMeta(nil), h.Columns...)
	return &c
}

// SerializeHeader writes the header into a page buffer.
func SerializeHeader(h *IndexFileHeader, data []byte) error {
	if len(data) != types.PageSize {
		return errors.Newf("SerializeHeader: data buffer must be %d bytes", types.PageSize)
	}
	if len(h.Columns) == 0 || len(h.Columns) > maxKeyColumns {
		return errors.Newf("SerializeHeader: invalid column count %d", len(h.Columns))
	}

	offset := types.PageCommonHeader
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(data[offset:], v)
		offset += 4
	}

	putU32(headerMagic)
	binary.LittleEndian.PutUint16(data[offset:], headerVersion)
	offset += 2
	putU32(uint32(h.NumPages))
	putU32(uint32(h.RootPage))
	putU32(uint32(h.KeyLen))
	putU32(uint32(h.TreeOrder))
	putU32(uint32(h.MaxRecordsPerLeaf))
	putU32(uint32(h.RecordLen))
	putU32(uint32(h.FirstLeaf))
	putU32(uint32(h.LastLeaf))
	binary.LittleEndian.PutUint64(data[offset:], h.NextRecordID)
	offset += 8

	binary.LittleEndian.PutUint16(data[offset:], uint16(len(h.Columns)))
	offset += 2
	for _, col := range h.Columns {
		data[offset] = byte(col.Type)
		binary.LittleEndian.PutUint16(data[offset+1:], uint16(col.Len))
		offset += 3
	}

	return nil
}

// DeserializeHeader reads page 0 of an index file.
func DeserializeHeader(data []byte) (*IndexFileHeader, error) {
	if len(data) != types.PageSize {
		return nil, errors.Newf("DeserializeHeader: data must be %d bytes", types.PageSize)
	}

	offset := types.PageCommonHeader
	getI32 := func() int32 {
		v := int32(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		return v
	}

	if magic := uint32(getI32()); magic != headerMagic {
		return nil, errors.Wrapf(ErrBadIndexFile, "bad magic %#x", magic)
	}
	if version := binary.LittleEndian.Uint16(data[offset:]); version != headerVersion {
		return nil, errors.Wrapf(ErrBadIndexFile, "unsupported version %d", version)
	}
	offset += 2

	h := &IndexFileHeader{}
	h.NumPages = getI32()
	h.RootPage = getI32()
	h.KeyLen = getI32()
	h.TreeOrder = getI32()
	h.MaxRecordsPerLeaf = getI32()
	h.RecordLen = getI32()
	h.FirstLeaf = getI32()
	h.LastLeaf = getI32()
	h.NextRecordID = binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	numCols := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	if numCols == 0 || numCols > maxKeyColumns {
		return nil, errors.Wrapf(ErrBadIndexFile, "invalid column count %d", numCols)
	}
	h.Columns = make([]types.ColumnMeta, 0, numCols)
	keyLen := 0
	for i := 0; i < numCols; i++ {
		col := types.ColumnMeta{
			Type: types.ColumnType(data[offset]),
			Len:  int(binary.LittleEndian.Uint16(data[offset+1:])),
		}
		offset += 3
		keyLen += col.Len
		h.Columns = append(h.Columns, col)
	}

	if keyLen != int(h.KeyLen) {
		return nil, errors.Wrapf(ErrBadIndexFile, "key length %d does not match columns (%d)", h.KeyLen, keyLen)
	}
	if h.TreeOrder < 3 || h.MaxRecordsPerLeaf < 2 || h.RecordLen < RecordHeaderSize {
		return nil, errors.Wrapf(ErrBadIndexFile, "invalid capacities order=%d maxRecords=%d recordLen=%d",
			h.TreeOrder, h.MaxRecordsPerLeaf, h.RecordLen)
	}

	return h, nil
}

// ReadPageHeader decodes the node header of a page.
func ReadPageHeader(data []byte) PageHeader {
	i32 := func(off int) int32 { return int32(binary.LittleEndian.Uint32(data[off:])) }
	return PageHeader{
		Parent:             i32(offParent),
		IsLeaf:             data[offIsLeaf] == 1,
		NumKeys:            i32(offNumKeys),
		NumRecords:         i32(offNumRecords),
		TotRecords:         i32(offTotRecords),
		FreeSpaceOffset:    i32(offFreeSpace),
		FirstDeletedOffset: i32(offFirstDeleted),
		PrevPage:           i32(offPrevPage),
		NextPage:           i32(offNextPage),
	}
}

// WritePageHeader encodes a node header into a page.
func WritePageHeader(data []byte, ph PageHeader) {
	put := func(off int, v int32) { binary.LittleEndian.PutUint32(data[off:], uint32(v)) }
	if ph.IsLeaf {
		data[offIsLeaf] = 1
	} else {
		data[offIsLeaf] = 0
	}
	put(offParent, ph.Parent)
	put(offNumKeys, ph.NumKeys)
	put(offNumRecords, ph.NumRecords)
	put(offTotRecords, ph.TotRecords)
	put(offFreeSpace, ph.FreeSpaceOffset)
	put(offFirstDeleted, ph.FirstDeletedOffset)
	put(offPrevPage, ph.PrevPage)
	put(offNextPage, ph.NextPage)
}
