// Package wire encodes and decodes the MarketUpdate protobuf message carried
// on the broker topic.
//
//	message MarketUpdate {
//	  string ticker       = 1;
//	  double price        = 2;
//	  int32  volume       = 3;
//	  int64  timestamp_ns = 4;
//	}
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
)

const (
	fieldTicker      protowire.Number = 1
	fieldPrice       protowire.Number = 2
	fieldVolume      protowire.Number = 3
	fieldTimestampNs protowire.Number = 4
)

var (
	// ErrMalformed means the payload is not a well formed MarketUpdate.
	ErrMalformed = errors.New("malformed market update")
	// ErrInvalid means the payload decoded but carries unusable values.
	ErrInvalid = errors.New("invalid market update")
)

// Marshal encodes u. Zero-valued fields are omitted, as proto3 does.
func Marshal(u models.MarketUpdate) []byte {
	b := make([]byte, 0, 32+len(u.Ticker))
	if u.Ticker != "" {
		b = protowire.AppendTag(b, fieldTicker, protowire.BytesType)
		b = protowire.AppendString(b, u.Ticker)
	}
	if u.Price != 0 {
		b = protowire.AppendTag(b, fieldPrice, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(u.Price))
	}
	if u.Volume != 0 {
		b = protowire.AppendTag(b, fieldVolume, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(u.Volume)))
	}
	if u.TimestampNs != 0 {
		b = protowire.AppendTag(b, fieldTimestampNs, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(u.TimestampNs))
	}
	return b
}

// Unmarshal decodes a MarketUpdate. Unknown fields are skipped so newer
// producers can add fields. The result is validated before it is returned.
func Unmarshal(b []byte) (models.MarketUpdate, error) {
	var u models.MarketUpdate
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return u, fmt.Errorf("%w: tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldTicker && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return u, fmt.Errorf("%w: ticker: %v", ErrMalformed, protowire.ParseError(m))
			}
			u.Ticker, n = v, m
		case num == fieldPrice && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return u, fmt.Errorf("%w: price: %v", ErrMalformed, protowire.ParseError(m))
			}
			u.Price, n = math.Float64frombits(v), m
		case num == fieldVolume && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return u, fmt.Errorf("%w: volume: %v", ErrMalformed, protowire.ParseError(m))
			}
			u.Volume, n = int32(v), m
		case num == fieldTimestampNs && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return u, fmt.Errorf("%w: timestamp_ns: %v", ErrMalformed, protowire.ParseError(m))
			}
			u.TimestampNs, n = int64(v), m
		case num == fieldTicker, num == fieldPrice, num == fieldVolume, num == fieldTimestampNs:
			return u, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return u, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}

	if err := Validate(u); err != nil {
		return u, err
	}
	return u, nil
}

// Validate checks the domain constraints of a decoded update.
func Validate(u models.MarketUpdate) error {
	switch {
	case u.Ticker == "":
		return fmt.Errorf("%w: empty ticker", ErrInvalid)
	case !(u.Price > 0) || math.IsInf(u.Price, 1):
		return fmt.Errorf("%w: price %v", ErrInvalid, u.Price)
	case u.Volume < 0:
		return fmt.Errorf("%w: volume %d", ErrInvalid, u.Volume)
	}
	return nil
}
