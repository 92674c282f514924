package compress

import (
	"fmt"

	"github.com/quiversearch/quiver/errs"
)

// Type identifies a compression algorithm. The byte value is stable and
// is what the compressed stored-value wrapper writes into segment files.
type Type uint8

const (
	None Type = iota
	LZ4
	S2
	Zstd
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case S2:
		return "s2"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("compress.Type(%d)", uint8(t))
	}
}

// ParseType resolves an algorithm name, e.g. from configuration.
func ParseType(name string) (Type, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "s2":
		return S2, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: compression %q", errs.ErrUnsupported, name)
	}
}

// Compressor compresses byte payloads. The returned slice is newly
// allocated and owned by the caller; the input is never modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor. Implementations validate the input
// framing and fail on corrupted or mismatched data.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions. Implementations are stateless or
// internally pooled and safe for concurrent use.
type Codec interface {
	Compressor
	Decompressor
}

var builtin = map[Type]Codec{
	None: NewNoOpCompressor(),
	LZ4:  NewLZ4Compressor(),
	S2:   NewS2Compressor(),
	Zstd: NewZstdCompressor(),
}

// ForType returns the shared codec instance for an algorithm.
func ForType(t Type) (Codec, error) {
	if codec, ok := builtin[t]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("%w: compression type %d", errs.ErrUnsupported, t)
}
