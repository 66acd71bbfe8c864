package moduleplayer

import (
	"encoding/binary"
	"fmt"
)

// itBitstream is a lazy-refill, LSB-first bit reader over a 32KB sample
// compression chunk (spec.md §4.2's second compression scheme, the IT
// sample codec, grounded on mukunda/modlib's itmod/bitstream.go).
type itBitstream struct {
	src     []byte
	readPos int
	buffer  uint64
	bits    int
}

func newITBitstream(src []byte) *itBitstream {
	return &itBitstream{src: src}
}

func (b *itBitstream) read(width int) (uint32, error) {
	for b.bits < width {
		if b.readPos >= len(b.src) {
			return 0, fmt.Errorf("%w: sample bit-stream underrun", ErrTruncated)
		}
		b.buffer |= uint64(b.src[b.readPos]) << uint(b.bits)
		b.readPos++
		b.bits += 8
	}
	v := uint32(b.buffer & ((1 << uint(width)) - 1))
	b.buffer >>= uint(width)
	b.bits -= width
	return v, nil
}

// itSampleCodec holds the two fixed parameter sets (8-bit, 16-bit) used
// by decodeITChunk, plus the It215 flag that selects the older (mem1) or
// newer (mem2) compatible accumulator when emitting each sample.
type itSampleCodec struct {
	It215 bool
	Is16  bool
}

type itCodecParams struct {
	defWidth  int
	fetchBits int
	mask      int
}

func itCodecParams8() itCodecParams  { return itCodecParams{defWidth: 8, fetchBits: 3, mask: 0xFF} }
func itCodecParams16() itCodecParams { return itCodecParams{defWidth: 16, fetchBits: 4, mask: 0xFFFF} }

// decode unpacks a full IT-compressed sample's worth of data into dst,
// which is pre-sized to the sample's Length (mono channel count already
// factored in by the caller for stereo samples).
func (c *itSampleCodec) decode(mf *MemoryFile, dst []int16, length int) error {
	const chunkFrames8 = 0x8000
	const chunkFrames16 = 0x4000

	frames := chunkFrames8
	if c.Is16 {
		frames = chunkFrames16
	}

	done := 0
	for done < length {
		n := frames
		if length-done < n {
			n = length - done
		}
		chunk, err := c.getChunk(mf)
		if err != nil {
			return err
		}
		if err := c.decodeChunk(chunk, dst[done:done+n]); err != nil {
			return err
		}
		done += n
	}
	return nil
}

func (c *itSampleCodec) getChunk(mf *MemoryFile) (*itBitstream, error) {
	lenBytes, err := mf.ReadExact(2)
	if err != nil {
		return nil, err
	}
	byteLen := int(binary.LittleEndian.Uint16(lenBytes))
	data, err := mf.ReadExact(byteLen)
	if err != nil {
		return nil, err
	}
	return newITBitstream(data), nil
}

// decodeChunk implements OpenMPT's ITCompression algorithm: an adaptive
// bit width starts at 9 (8-bit samples) or 17 (16-bit), shrinking or
// growing per block based on small escape codes, with accumulated deltas
// (mem1) and an IT215-compatible variant (mem2) both tracked so either
// can be selected for output.
func (c *itSampleCodec) decodeChunk(br *itBitstream, dst []int16) error {
	params := itCodecParams8()
	if c.Is16 {
		params = itCodecParams16()
	}

	width := params.defWidth + 1
	var mem1, mem2 int32

	for i := 0; i < len(dst); {
		v, err := br.read(width)
		if err != nil {
			return err
		}
		signed := signExtend(v, width)

		top := (1 << uint(width-1))
		_ = top

		switch {
		case width <= params.defWidth-2 || width > params.defWidth+1:
			// Never reached for sane widths; guards against a corrupt
			// stream driving width out of its valid band.
			return fmt.Errorf("%w: sample codec width out of range", ErrInvalid)

		case width < params.defWidth:
			// Mode A: plain value, possibly a width-change escape at the
			// top of the range.
			border := (1 << uint(width-1)) - (1 << uint(params.defWidth-width+1))
			if int32(signed) == int32(border)+1 {
				fetch, err := br.read(params.fetchBits)
				if err != nil {
					return err
				}
				width = applyWidthDelta(width, int(fetch), params)
				continue
			}
			mem1 += signed
			mem2 += signed

		case width == params.defWidth:
			// Mode B: width-change escapes occupy the top two codes.
			topVal := int32(1<<uint(width-1)) - 1
			if signed > topVal-8 && signed <= topVal {
				if signed == topVal {
					fetch, err := br.read(params.fetchBits)
					if err != nil {
						return err
					}
					width = applyWidthDelta(width, int(fetch), params)
					continue
				}
				width = int(signed) - int(topVal) + width
				if width < 1 {
					width = 1
				}
				continue
			}
			mem1 += signed
			mem2 += signed

		default:
			// Mode C: width one above default, top bit is a fetch flag.
			if v&uint32(1<<uint(width-1)) != 0 {
				fetch := v &^ uint32(1<<uint(width-1))
				width = applyWidthDelta(width-1, int(fetch), params)
				if width <= 0 {
					width = params.defWidth + 1
				}
				continue
			}
			mem1 += signed
			mem2 += signed
		}

		var out int32
		if c.It215 {
			out = mem2
		} else {
			out = mem1
		}
		if c.Is16 {
			dst[i] = int16(out)
		} else {
			dst[i] = int16(int8(out)) << 8
		}
		i++
	}

	return nil
}

func applyWidthDelta(width, fetch int, params itCodecParams) int {
	newWidth := fetch + 1
	if newWidth >= params.defWidth {
		newWidth++
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newWidth > params.defWidth+1 {
		newWidth = params.defWidth + 1
	}
	return newWidth
}

func signExtend(v uint32, width int) int32 {
	shift := uint(32 - width)
	return int32(v<<shift) >> shift
}
