package moduleplayer

import (
	"encoding/binary"
	"fmt"
)

// MMCMP is a historical module-container compression format. A wrapped
// buffer begins with the 8-byte signature "ziRCONia" followed by a small
// fixed header, a block table, and one or more compressed blocks; each
// block carries a directory of sub-blocks that are unpacked independently
// into their absolute destination offset (spec.md §4.2).
var mmcmpMagic = [8]byte{'z', 'i', 'R', 'C', 'O', 'N', 'i', 'a'}

const (
	mmcmpMinHeaderSize = 14
	mmcmpMinUnpackSize = 16
	mmcmpMaxUnpackSize = 128 * 1024 * 1024

	mmcmpFlagUncompressed = 0x0001
	mmcmpFlag16Bit        = 0x0004
	mmcmpFlagDelta        = 0x0008
	mmcmpFlagAbs16        = 0x0010
)

type mmcmpHeader struct {
	HdrSize  uint16
	Version  uint16
	NumBlocks uint16
	FileSize uint32
	BlkTable uint32
	GlbComp  uint8
	FmtComp  uint8
}

type mmcmpBlock struct {
	UnpackedSize uint32
	PackedSize   uint32
	XorCheck     uint32
	SubBlocks    uint16
	Flags        uint16
	TableEntries uint16
	NumBits      uint16
}

type mmcmpSubBlock struct {
	UnpackPos  uint32
	UnpackSize uint32
}

// isMMCMP reports whether buf begins with the MMCMP signature.
func isMMCMP(buf []byte) bool {
	if len(buf) < 8 {
		return false
	}
	for i := range mmcmpMagic {
		if buf[i] != mmcmpMagic[i] {
			return false
		}
	}
	return true
}

// mmcmpDecompress unwraps an MMCMP container and returns the uncompressed
// payload, which the dispatcher then re-runs format detection against
// (spec.md §4.3.1).
func mmcmpDecompress(buf []byte) ([]byte, error) {
	if !isMMCMP(buf) {
		return nil, fmt.Errorf("%w: bad magic", ErrBadMMCMP)
	}

	mf, err := OpenMemoryFile(buf)
	if err != nil {
		return nil, err
	}
	if _, err := mf.Seek(8, SeekSet); err != nil {
		return nil, err
	}

	var hdr mmcmpHeader
	hdrBytes, err := mf.ReadExact(18)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrBadMMCMP)
	}
	hdr.HdrSize = binary.LittleEndian.Uint16(hdrBytes[0:])
	hdr.Version = binary.LittleEndian.Uint16(hdrBytes[2:])
	hdr.NumBlocks = binary.LittleEndian.Uint16(hdrBytes[4:])
	hdr.FileSize = binary.LittleEndian.Uint32(hdrBytes[6:])
	hdr.BlkTable = binary.LittleEndian.Uint32(hdrBytes[10:])
	hdr.GlbComp = hdrBytes[14]
	hdr.FmtComp = hdrBytes[15]

	if hdr.HdrSize < mmcmpMinHeaderSize {
		return nil, fmt.Errorf("%w: header too small", ErrBadMMCMP)
	}
	if hdr.NumBlocks < 1 {
		return nil, fmt.Errorf("%w: no blocks", ErrBadMMCMP)
	}
	if hdr.FileSize < mmcmpMinUnpackSize || hdr.FileSize > mmcmpMaxUnpackSize {
		return nil, fmt.Errorf("%w: uncompressed size out of range", ErrBadMMCMP)
	}
	if int(hdr.BlkTable) < 0 || int(hdr.BlkTable)+int(hdr.NumBlocks)*4 > len(buf) {
		return nil, fmt.Errorf("%w: block table outside file", ErrBadMMCMP)
	}

	out := make([]byte, hdr.FileSize)

	if _, err := mf.Seek(int64(hdr.BlkTable), SeekSet); err != nil {
		return nil, err
	}
	blockOffsets := make([]uint32, hdr.NumBlocks)
	for i := range blockOffsets {
		b, err := mf.ReadExact(4)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated block table", ErrBadMMCMP)
		}
		blockOffsets[i] = binary.LittleEndian.Uint32(b)
	}

	for _, off := range blockOffsets {
		if int(off) < 0 || int(off) >= len(buf) {
			return nil, fmt.Errorf("%w: block offset out of range", ErrBadMMCMP)
		}
		if err := mmcmpDecodeBlock(mf, int(off), out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func mmcmpDecodeBlock(mf *MemoryFile, offset int, out []byte) error {
	if _, err := mf.Seek(int64(offset), SeekSet); err != nil {
		return err
	}
	hb, err := mf.ReadExact(20)
	if err != nil {
		return fmt.Errorf("%w: truncated block header", ErrBadMMCMP)
	}

	var blk mmcmpBlock
	blk.UnpackedSize = binary.LittleEndian.Uint32(hb[0:])
	blk.PackedSize = binary.LittleEndian.Uint32(hb[4:])
	blk.XorCheck = binary.LittleEndian.Uint32(hb[8:])
	blk.SubBlocks = binary.LittleEndian.Uint16(hb[12:])
	blk.Flags = binary.LittleEndian.Uint16(hb[14:])
	blk.TableEntries = binary.LittleEndian.Uint16(hb[16:])
	blk.NumBits = binary.LittleEndian.Uint16(hb[18:])

	subs := make([]mmcmpSubBlock, blk.SubBlocks)
	for i := range subs {
		sb, err := mf.ReadExact(8)
		if err != nil {
			return fmt.Errorf("%w: truncated sub-block directory", ErrBadMMCMP)
		}
		subs[i].UnpackPos = binary.LittleEndian.Uint32(sb[0:])
		subs[i].UnpackSize = binary.LittleEndian.Uint32(sb[4:])
	}

	packed, err := mf.ReadExact(int(blk.PackedSize))
	if err != nil {
		return fmt.Errorf("%w: truncated packed data", ErrBadMMCMP)
	}

	if blk.Flags&mmcmpFlagUncompressed != 0 {
		pos := 0
		for _, sb := range subs {
			end := int(sb.UnpackPos) + int(sb.UnpackSize)
			if end > len(out) || pos+int(sb.UnpackSize) > len(packed) {
				return fmt.Errorf("%w: sub-block extends past destination", ErrBadMMCMP)
			}
			copy(out[sb.UnpackPos:end], packed[pos:pos+int(sb.UnpackSize)])
			pos += int(sb.UnpackSize)
		}
		return nil
	}

	br := newMMCMPBitReader(packed)
	is16 := blk.Flags&mmcmpFlag16Bit != 0

	for _, sb := range subs {
		end := int(sb.UnpackPos) + int(sb.UnpackSize)
		if end > len(out) {
			return fmt.Errorf("%w: sub-block extends past destination", ErrBadMMCMP)
		}
		var decErr error
		if is16 {
			decErr = mmcmpDecode16(br, out[sb.UnpackPos:end], blk.Flags&mmcmpFlagAbs16 != 0)
		} else {
			decErr = mmcmpDecode8(br, out[sb.UnpackPos:end])
		}
		if decErr != nil {
			return decErr
		}
	}

	return nil
}

// mmcmpBitReader is a lazy-refill, LSB-first bit reader shared by both
// inner codecs (spec.md §4.2): it keeps at least 24 valid bits buffered in
// a 32-bit register before it is asked to shift any out.
type mmcmpBitReader struct {
	data     []byte
	pos      int
	bitBuf   uint32
	bitCount uint
}

func newMMCMPBitReader(data []byte) *mmcmpBitReader {
	return &mmcmpBitReader{data: data}
}

func (b *mmcmpBitReader) refill() {
	for b.bitCount <= 24 && b.pos < len(b.data) {
		b.bitBuf |= uint32(b.data[b.pos]) << b.bitCount
		b.pos++
		b.bitCount += 8
	}
}

func (b *mmcmpBitReader) read(bits uint) (uint32, error) {
	b.refill()
	if b.bitCount < bits {
		return 0, fmt.Errorf("%w: bit-stream underrun", ErrBadMMCMP)
	}
	v := b.bitBuf & ((1 << bits) - 1)
	b.bitBuf >>= bits
	b.bitCount -= bits
	return v, nil
}

// mmcmpDecode8 decodes the 8-bit adaptive-width sub-block codec: values at
// or above the current width's command threshold either change the active
// bit-width or emit a literal; otherwise the value indexes an 8-bit table.
// Literals and table values alike are added to a running value that is
// written out as the sample byte; the block's delta flag is not consulted.
func mmcmpDecode8(br *mmcmpBitReader, dst []byte) error {
	const (
		initialWidth = 8
		fetchBits    = 3
	)
	width := initialWidth
	var acc byte
	table := mmcmpTable8()

	for i := 0; i < len(dst); {
		threshold := mmcmpThreshold(width)

		v, err := br.read(uint(width) + 1)
		if err != nil {
			return err
		}

		if int(v) >= threshold {
			if v-uint32(threshold) == uint32(threshold)-1 {
				// Literal escape: read a fresh literal byte and add it
				// to the running value.
				lit, err := br.read(8)
				if err != nil {
					return err
				}
				acc += byte(lit)
				dst[i] = acc
				i++
				continue
			}
			fw, err := br.read(fetchBits)
			if err != nil {
				return err
			}
			width = int(fw) + 1
			if width > initialWidth {
				width = initialWidth
			}
			continue
		}

		acc += table[int(v)%len(table)]
		dst[i] = acc
		i++
	}

	return nil
}

// mmcmpDecode16 is the 16-bit analogue of mmcmpDecode8: it emits signed
// 16-bit values accumulated into a running value. In "absolute mode" (the
// block's Abs16 flag) a literal replaces the running value instead of being
// added to it; no sign flip is applied in either mode.
//
// §9 leaves the bitDepth > 17 handling of the original MMCMP codec as an
// explicit open question the reference author themselves was unsure
// about; here a width above 17 is rejected as corrupt data (ErrBadMMCMP).
// The 4-bit width fetch only yields widths 1-16, so that check does not
// fire on any stream this decoder reads; the 8-bit codec clamps its width
// to 8 and has no such error.
func mmcmpDecode16(br *mmcmpBitReader, dst []byte, absolute bool) error {
	if len(dst)%2 != 0 {
		return fmt.Errorf("%w: odd-length 16-bit sub-block", ErrBadMMCMP)
	}
	const (
		initialWidth = 16
		fetchBits    = 4
	)
	width := initialWidth
	var acc int16

	for i := 0; i < len(dst); {
		if width > 17 {
			return fmt.Errorf("%w: bit width overflow", ErrBadMMCMP)
		}

		threshold := mmcmpThreshold(width)
		v, err := br.read(uint(width) + 1)
		if err != nil {
			return err
		}

		if int(v) >= threshold {
			if v-uint32(threshold) == uint32(threshold)-1 {
				lit, err := br.read(16)
				if err != nil {
					return err
				}
				val := int16(lit)
				if absolute {
					acc = val
				} else {
					acc += val
				}
				binary.LittleEndian.PutUint16(dst[i:], uint16(acc))
				i += 2
				continue
			}
			fw, err := br.read(fetchBits)
			if err != nil {
				return err
			}
			width = int(fw) + 1
			if width > initialWidth+1 {
				width = initialWidth + 1
			}
			continue
		}

		delta := int16(v) - int16(threshold/2)
		acc += delta
		binary.LittleEndian.PutUint16(dst[i:], uint16(acc))
		i += 2
	}

	return nil
}

// mmcmpThreshold returns the command threshold for the current bit width:
// values at or above 2^width - 2 switch width or emit a literal.
func mmcmpThreshold(width int) int {
	return (1 << uint(width)) - 2
}

func mmcmpTable8() []byte {
	tbl := make([]byte, 256)
	for i := range tbl {
		tbl[i] = byte(i)
	}
	return tbl
}
