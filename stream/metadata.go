package stream

import (
	"fmt"
	"sort"

	"github.com/quiversearch/quiver/errs"
)

// Metadata values are written in a small self-describing tag-length-value
// encoding. It deliberately supports only the shapes quiver's directory and
// option structures need: nil, bool, int64, float64, string, []byte,
// []any, and map[string]any. Integers of any Go width are normalized to
// int64 on write and always decode as int64.
//
// The encoding is versioned with a single leading byte so it can evolve
// without breaking old files.
const metadataVersion = 1

// Value tags. The tag is a single byte preceding each value.
const (
	tagNil    = 0x00
	tagFalse  = 0x01
	tagTrue   = 0x02
	tagInt    = 0x03 // zig-zag varint
	tagFloat  = 0x04 // 8-byte IEEE 754
	tagString = 0x05 // varint length + UTF-8 bytes
	tagBytes  = 0x06 // varint length + raw bytes
	tagList   = 0x07 // varint count + values
	tagMap    = 0x08 // varint count + (string key, value) pairs
)

// WriteMetadata writes a version byte followed by the tagged encoding of v.
//
// Map keys are written in sorted order so the same logical value always
// produces the same bytes, which keeps directory digests stable.
func (w *Writer) WriteMetadata(v any) error {
	if err := w.WriteByte(metadataVersion); err != nil {
		return err
	}

	return w.writeValue(v)
}

func (w *Writer) writeValue(v any) error {
	switch val := v.(type) {
	case nil:
		return w.WriteByte(tagNil)
	case bool:
		if val {
			return w.WriteByte(tagTrue)
		}

		return w.WriteByte(tagFalse)
	case int:
		return w.writeTaggedInt(int64(val))
	case int32:
		return w.writeTaggedInt(int64(val))
	case int64:
		return w.writeTaggedInt(val)
	case uint32:
		return w.writeTaggedInt(int64(val))
	case float64:
		if err := w.WriteByte(tagFloat); err != nil {
			return err
		}

		return w.WriteFloat64(val)
	case string:
		if err := w.WriteByte(tagString); err != nil {
			return err
		}

		return w.WriteVarString([]byte(val))
	case []byte:
		if err := w.WriteByte(tagBytes); err != nil {
			return err
		}

		return w.WriteVarString(val)
	case []any:
		if err := w.WriteByte(tagList); err != nil {
			return err
		}
		if err := w.WriteUvarint(uint64(len(val))); err != nil {
			return err
		}
		for _, item := range val {
			if err := w.writeValue(item); err != nil {
				return err
			}
		}

		return nil
	case map[string]any:
		if err := w.WriteByte(tagMap); err != nil {
			return err
		}
		if err := w.WriteUvarint(uint64(len(val))); err != nil {
			return err
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := w.WriteVarString([]byte(k)); err != nil {
				return err
			}
			if err := w.writeValue(val[k]); err != nil {
				return err
			}
		}

		return nil
	default:
		return fmt.Errorf("%w: metadata cannot encode %T", errs.ErrUnsupported, v)
	}
}

func (w *Writer) writeTaggedInt(v int64) error {
	if err := w.WriteByte(tagInt); err != nil {
		return err
	}

	return w.WriteVarint(v)
}

// ReadMetadata reads a value written by WriteMetadata.
func (r *Reader) ReadMetadata() (any, error) {
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != metadataVersion {
		return nil, fmt.Errorf("%w: metadata version %d", errs.ErrBadMagic, version)
	}

	return r.readValue(0)
}

// maxMetadataDepth bounds nesting so corrupt input cannot blow the stack.
const maxMetadataDepth = 32

func (r *Reader) readValue(depth int) (any, error) {
	if depth > maxMetadataDepth {
		return nil, fmt.Errorf("%w: metadata nested deeper than %d", errs.ErrCorrupt, maxMetadataDepth)
	}

	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagNil:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagInt:
		return r.ReadVarint()
	case tagFloat:
		return r.ReadFloat64()
	case tagString:
		p, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}

		return string(p), nil
	case tagBytes:
		return r.ReadVarString()
	case tagList:
		n, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if int64(n) > r.Remaining() { //nolint:gosec
			return nil, fmt.Errorf("%w: list count %d exceeds remaining bytes", errs.ErrCorrupt, n)
		}
		list := make([]any, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := r.readValue(depth + 1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}

		return list, nil
	case tagMap:
		n, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if int64(n) > r.Remaining() { //nolint:gosec
			return nil, fmt.Errorf("%w: map count %d exceeds remaining bytes", errs.ErrCorrupt, n)
		}
		m := make(map[string]any, n)
		for i := uint64(0); i < n; i++ {
			key, err := r.ReadVarString()
			if err != nil {
				return nil, err
			}
			val, err := r.readValue(depth + 1)
			if err != nil {
				return nil, err
			}
			m[string(key)] = val
		}

		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown metadata tag 0x%02x", errs.ErrCorrupt, tag)
	}
}
