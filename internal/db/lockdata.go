package db

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Instance save strings are zstd-compressed at rest. EncodeAll and DecodeAll
// are safe for concurrent use on shared coders.
var (
	lockEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	lockDecoder, _ = zstd.NewReader(nil)
)

// EncodeLockData compresses an instance script save string. Empty stays empty.
func EncodeLockData(data string) []byte {
	if data == "" {
		return nil
	}
	return lockEncoder.EncodeAll([]byte(data), nil)
}

// DecodeLockData is the inverse of EncodeLockData.
func DecodeLockData(blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	out, err := lockDecoder.DecodeAll(blob, nil)
	if err != nil {
		return "", fmt.Errorf("decompressing lock data: %w", err)
	}
	return string(out), nil
}
