package indexfile

import (
	bplus "IndexDB/storage_engine/access/indexfile_manager/bplustree"
	"IndexDB/types"

	"github.com/cockroachdb/errors"
)

const (
	minTreeOrder         = 3
	minRecordsPerLeaf    = 2
	childPointerSize     = 4
	directoryOffsetWidth = 4
)

// ComputeCapacity derives the largest tree order and records per leaf that
// fit one page, keeping one spare slot for the entry that triggers a split:
//
//	PageHeaderSize + (keyLen+4) * (order+1)                 <= PageSize
//	PageHeaderSize + (recordLen+keyLen+4) * (maxRecords+1)  <= PageSize
//
// recordLen includes the record header.
func ComputeCapacity(keyLen, recordLen int) (order, maxRecords int, err error) {
	if keyLen <= 0 || keyLen > bplus.MaxIndexKeyLen {
		return 0, 0, errors.Wrapf(bplus.ErrInvalidKeyLength, "key of %d bytes (max %d)", keyLen, bplus.MaxIndexKeyLen)
	}
	if recordLen < bplus.RecordHeaderSize {
		return 0, 0, errors.Wrapf(bplus.ErrInvalidRecordLength, "record of %d bytes", recordLen)
	}

	usable := types.PageSize - bplus.PageHeaderSize
	order = usable/(keyLen+childPointerSize) - 1
	maxRecords = usable/(recordLen+keyLen+directoryOffsetWidth) - 1

	if order < minTreeOrder {
		return 0, 0, errors.Wrapf(bplus.ErrInvalidKeyLength, "key of %d bytes leaves order %d", keyLen, order)
	}
	if maxRecords < minRecordsPerLeaf {
		return 0, 0, errors.Wrapf(bplus.ErrInvalidRecordLength,
			"record of %d bytes with key of %d bytes leaves %d records per leaf", recordLen, keyLen, maxRecords)
	}
	return order, maxRecords, nil
}

// apply clamps the overrides into [floor, derived].
func (o CreateOptions) apply(order, maxRecords int) (int, int) {
	clamp := func(v, floor, ceil int) int {
		if v <= 0 || v > ceil {
			return ceil
		}
		if v < floor {
			return floor
		}
		return v
	}
	return clamp(o.TreeOrder, minTreeOrder, order), clamp(o.MaxRecordsPerLeaf, minRecordsPerLeaf, maxRecords)
}
