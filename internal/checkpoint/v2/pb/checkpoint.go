// Package pb defines the wire format of the two exactly-once checkpoint
// store value types (spec.md §4.2: "Values are protocol-buffer messages").
// The field encoding is hand-written against
// google.golang.org/protobuf/encoding/protowire rather than generated by
// protoc (no .proto toolchain is available in this environment), but the
// wire bytes it produces are standard protobuf: any protoc-generated
// message with the same field numbers/types decodes them identically.
package pb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// PrimaryCheckpoint mirrors spec.md §3 "Primary checkpoint".
type PrimaryCheckpoint struct {
	ConfigName      string
	Device          uint64
	Inode           uint64
	LogicalPath     string
	RealPath        string
	SigLength       uint32
	SigHash         uint64
	Concurrency     int32
	UpdateUnixNanos int64
}

const (
	fieldPrimaryConfigName = 1
	fieldPrimaryDevice     = 2
	fieldPrimaryInode      = 3
	fieldPrimaryLogical    = 4
	fieldPrimaryReal       = 5
	fieldPrimarySigLength  = 6
	fieldPrimarySigHash    = 7
	fieldPrimaryConcurr    = 8
	fieldPrimaryUpdate     = 9
)

// Marshal encodes p as a protobuf message.
func (p *PrimaryCheckpoint) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldPrimaryConfigName, protowire.BytesType)
	b = protowire.AppendString(b, p.ConfigName)
	b = protowire.AppendTag(b, fieldPrimaryDevice, protowire.VarintType)
	b = protowire.AppendVarint(b, p.Device)
	b = protowire.AppendTag(b, fieldPrimaryInode, protowire.VarintType)
	b = protowire.AppendVarint(b, p.Inode)
	b = protowire.AppendTag(b, fieldPrimaryLogical, protowire.BytesType)
	b = protowire.AppendString(b, p.LogicalPath)
	b = protowire.AppendTag(b, fieldPrimaryReal, protowire.BytesType)
	b = protowire.AppendString(b, p.RealPath)
	b = protowire.AppendTag(b, fieldPrimarySigLength, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.SigLength))
	b = protowire.AppendTag(b, fieldPrimarySigHash, protowire.VarintType)
	b = protowire.AppendVarint(b, p.SigHash)
	b = protowire.AppendTag(b, fieldPrimaryConcurr, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(p.Concurrency)))
	b = protowire.AppendTag(b, fieldPrimaryUpdate, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.UpdateUnixNanos))
	return b, nil
}

// Unmarshal decodes b, produced by Marshal, into p. Unknown fields are
// skipped so the schema can grow without breaking old readers.
func (p *PrimaryCheckpoint) Unmarshal(b []byte) error {
	*p = PrimaryCheckpoint{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("pb: primary checkpoint: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldPrimaryConfigName:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad config_name: %w", protowire.ParseError(n))
			}
			p.ConfigName = v
			b = b[n:]
		case fieldPrimaryDevice:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad device: %w", protowire.ParseError(n))
			}
			p.Device = v
			b = b[n:]
		case fieldPrimaryInode:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad inode: %w", protowire.ParseError(n))
			}
			p.Inode = v
			b = b[n:]
		case fieldPrimaryLogical:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad logical_path: %w", protowire.ParseError(n))
			}
			p.LogicalPath = v
			b = b[n:]
		case fieldPrimaryReal:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad real_path: %w", protowire.ParseError(n))
			}
			p.RealPath = v
			b = b[n:]
		case fieldPrimarySigLength:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad sig_length: %w", protowire.ParseError(n))
			}
			p.SigLength = uint32(v)
			b = b[n:]
		case fieldPrimarySigHash:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad sig_hash: %w", protowire.ParseError(n))
			}
			p.SigHash = v
			b = b[n:]
		case fieldPrimaryConcurr:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad concurrency: %w", protowire.ParseError(n))
			}
			p.Concurrency = int32(int64(v))
			b = b[n:]
		case fieldPrimaryUpdate:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad update_time: %w", protowire.ParseError(n))
			}
			p.UpdateUnixNanos = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("pb: primary checkpoint: bad unknown field: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// RangeCheckpoint mirrors spec.md §3 "Range checkpoint".
type RangeCheckpoint struct {
	ReadOffset      int64
	ReadLength      int64
	HashKey         string
	SequenceID      int64
	Committed       bool
	UpdateUnixNanos int64
}

const (
	fieldRangeOffset  = 1
	fieldRangeLength  = 2
	fieldRangeHashKey = 3
	fieldRangeSeq     = 4
	fieldRangeCommit  = 5
	fieldRangeUpdate  = 6
)

// Marshal encodes r as a protobuf message.
func (r *RangeCheckpoint) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldRangeOffset, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ReadOffset))
	b = protowire.AppendTag(b, fieldRangeLength, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ReadLength))
	b = protowire.AppendTag(b, fieldRangeHashKey, protowire.BytesType)
	b = protowire.AppendString(b, r.HashKey)
	b = protowire.AppendTag(b, fieldRangeSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.SequenceID))
	b = protowire.AppendTag(b, fieldRangeCommit, protowire.VarintType)
	committed := uint64(0)
	if r.Committed {
		committed = 1
	}
	b = protowire.AppendVarint(b, committed)
	b = protowire.AppendTag(b, fieldRangeUpdate, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.UpdateUnixNanos))
	return b, nil
}

// Unmarshal decodes b into r.
func (r *RangeCheckpoint) Unmarshal(b []byte) error {
	*r = RangeCheckpoint{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("pb: range checkpoint: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldRangeOffset:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: range checkpoint: bad read_offset: %w", protowire.ParseError(n))
			}
			r.ReadOffset = int64(v)
			b = b[n:]
		case fieldRangeLength:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: range checkpoint: bad read_length: %w", protowire.ParseError(n))
			}
			r.ReadLength = int64(v)
			b = b[n:]
		case fieldRangeHashKey:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("pb: range checkpoint: bad hash_key: %w", protowire.ParseError(n))
			}
			r.HashKey = v
			b = b[n:]
		case fieldRangeSeq:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: range checkpoint: bad sequence_id: %w", protowire.ParseError(n))
			}
			r.SequenceID = int64(v)
			b = b[n:]
		case fieldRangeCommit:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: range checkpoint: bad committed: %w", protowire.ParseError(n))
			}
			r.Committed = v != 0
			b = b[n:]
		case fieldRangeUpdate:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pb: range checkpoint: bad update_time: %w", protowire.ParseError(n))
			}
			r.UpdateUnixNanos = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("pb: range checkpoint: bad unknown field: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}
