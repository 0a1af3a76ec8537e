package dagpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// DataType is the UnixFS node kind carried in a Data message's Type
// field.
type DataType int64

const (
	TRaw DataType = iota
	TDirectory
	TFile
	TMetadata
	TSymlink
	THAMTShard
)

func (t DataType) String() string {
	switch t {
	case TRaw:
		return "Raw"
	case TDirectory:
		return "Directory"
	case TFile:
		return "File"
	case TMetadata:
		return "Metadata"
	case TSymlink:
		return "Symlink"
	case THAMTShard:
		return "HAMTShard"
	default:
		return fmt.Sprintf("DataType(%d)", int64(t))
	}
}

// Data is the decoded UnixFS Data message that lives inside a PBNode's
// Data field.
type Data struct {
	Type DataType
	// Data holds this node's inline file bytes. For a File/Raw leaf it
	// is the segment's full content; for an internal File node it is
	// empty and BlockSizes describes the children instead.
	Data []byte
	// Filesize is the cumulative size of the subtree this node roots,
	// set on File/Raw nodes.
	Filesize uint64
	HasFilesize bool
	// BlockSizes holds, for an internal File node, the byte length each
	// child link contributes, in link order.
	BlockSizes []uint64
	// Fanout is the HAMT shard fanout width, set on HAMTShard nodes.
	Fanout uint64
}

const (
	dataFieldType       = 1
	dataFieldData       = 2
	dataFieldFilesize   = 3
	dataFieldBlockSizes = 4
	dataFieldHashType   = 5
	dataFieldFanout     = 6
)

// DecodeData parses raw (a PBNode's opaque Data field) as a UnixFS
// Data message.
func DecodeData(raw []byte) (Data, error) {
	var d Data
	var haveType bool

	for len(raw) > 0 {
		num, typ, size := protowire.ConsumeTag(raw)
		if size < 0 {
			return Data{}, protowire.ParseError(size)
		}
		raw = raw[size:]

		switch num {
		case dataFieldType:
			v, size := protowire.ConsumeVarint(raw)
			if size < 0 {
				return Data{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			d.Type = DataType(v)
			haveType = true
		case dataFieldData:
			v, size := protowire.ConsumeBytes(raw)
			if size < 0 {
				return Data{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			d.Data = v
		case dataFieldFilesize:
			v, size := protowire.ConsumeVarint(raw)
			if size < 0 {
				return Data{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			d.Filesize = v
			d.HasFilesize = true
		case dataFieldBlockSizes:
			v, size := protowire.ConsumeVarint(raw)
			if size < 0 {
				return Data{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			d.BlockSizes = append(d.BlockSizes, v)
		case dataFieldFanout:
			v, size := protowire.ConsumeVarint(raw)
			if size < 0 {
				return Data{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			d.Fanout = v
		default:
			size := protowire.ConsumeFieldValue(num, typ, raw)
			if size < 0 {
				return Data{}, protowire.ParseError(size)
			}
			raw = raw[size:]
		}
	}

	if !haveType {
		return Data{}, fmt.Errorf("dagpb: unixfs data missing type")
	}
	return d, nil
}
