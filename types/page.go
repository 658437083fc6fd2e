package types

const (
	PageSize = 4096 // 4KB page

	// every page starts with an 8 byte LSN followed by the page type stamp
	PageLSNSize      = 8
	PageTypeOffset   = 8
	PageCommonHeader = 9
)

type PageType uint8

const (
	PageTypeUnknown PageType = iota
	PageTypeHeapData
	PageTypeBPlusNode
	PageTypeMetadata
)

func (t PageType) String() string {
	switch t {
	case PageTypeHeapData:
		return "heap"
	case PageTypeBPlusNode:
		return "bplus-node"
	case PageTypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}
