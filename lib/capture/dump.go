// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/switchyard-systems/switchyard/lib/codec"
)

// Compression identifies the dump body compression. The tag is stored
// in the container header (1 byte); these values are format
// constants.
type Compression uint8

const (
	// CompressionNone stores the frame stream uncompressed.
	CompressionNone Compression = 0

	// CompressionLZ4 uses the LZ4 frame format. Fast default when
	// dumps are taken on a loaded machine.
	CompressionLZ4 Compression = 1

	// CompressionZstd uses zstd at the default level. Best ratio for
	// archived dumps; bootstrap traffic is repetitive and compresses
	// well.
	CompressionZstd Compression = 2
)

// String returns the name used by the CLI's --compression flag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression parses a compression name as accepted by the CLI.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q (want none, lz4, or zstd)", name)
}

// dumpMagic opens every dump container, followed by one compression
// tag byte and the (possibly compressed) CBOR frame sequence.
var dumpMagic = [6]byte{'S', 'W', 'C', 'A', 'P', '1'}

// ErrNotADump reports a reader whose leading bytes are not a dump
// container.
var ErrNotADump = errors.New("capture: not a capture dump")

// WriteDump writes frames to w as a dump container: magic, one
// compression tag byte, then each frame as one CBOR item.
func WriteDump(w io.Writer, frames []Frame, compression Compression) error {
	if _, err := w.Write(dumpMagic[:]); err != nil {
		return fmt.Errorf("writing dump magic: %w", err)
	}
	if _, err := w.Write([]byte{byte(compression)}); err != nil {
		return fmt.Errorf("writing compression tag: %w", err)
	}

	body, finish, err := compressor(w, compression)
	if err != nil {
		return err
	}
	encoder := codec.NewEncoder(body)
	for i := range frames {
		if err := encoder.Encode(frames[i]); err != nil {
			return fmt.Errorf("encoding frame %d: %w", frames[i].Seq, err)
		}
	}
	return finish()
}

// ReadDump reads a dump container back into frames.
func ReadDump(r io.Reader) ([]Frame, error) {
	header := make([]byte, len(dumpMagic)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrNotADump, err)
	}
	if [6]byte(header[:6]) != dumpMagic {
		return nil, ErrNotADump
	}

	body, release, err := decompressor(r, Compression(header[6]))
	if err != nil {
		return nil, err
	}
	defer release()

	var frames []Frame
	decoder := codec.NewDecoder(body)
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return nil, fmt.Errorf("decoding frame %d: %w", len(frames), err)
		}
		frames = append(frames, frame)
	}
}

// compressor wraps w in the tagged compression writer. The returned
// finish function flushes and closes the compressor; it must be
// called even for CompressionNone.
func compressor(w io.Writer, compression Compression) (io.Writer, func() error, error) {
	switch compression {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown compression %q", compression)
}

// decompressor wraps r in the tagged decompression reader. The
// returned release function frees decoder resources once reading is
// done.
func decompressor(r io.Reader, compression Compression) (io.Reader, func(), error) {
	switch compression {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown compression %q", compression)
}
