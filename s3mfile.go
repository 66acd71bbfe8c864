package moduleplayer

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// loadS3MFile parses a Scream Tracker 3 module. S3M's on-disk layout
// (parapointer tables into instrument/pattern blocks, packed per-row
// pattern bytes with a channel/mask byte) is the same shape IT later
// grew out of, which is why both land on the IT/S3M virtual machine
// (spec.md §4.4.1).
func loadS3MFile(buf []byte) (*Song, error) {
	if len(buf) < 0x70 || string(buf[0x2c:0x30]) != "SCRM" {
		return nil, fmt.Errorf("%w: missing SCRM tag", ErrBadMagic)
	}

	mf, err := OpenMemoryFile(buf)
	if err != nil {
		return nil, err
	}

	titleBytes, _ := mf.ReadExact(28)
	song := &Song{
		Type:         SongTypeS3M,
		Title:        strings.TrimRight(string(titleBytes), "\x00"),
		GlobalVolume: 128,
		MixingVolume: 48,
	}

	if _, err := mf.Seek(0x20, SeekSet); err != nil {
		return nil, err
	}
	hdr, err := mf.ReadExact(0x50 - 0x20)
	if err != nil {
		return nil, err
	}

	numOrders := int(binary.LittleEndian.Uint16(hdr[0:]))
	numInstruments := int(binary.LittleEndian.Uint16(hdr[2:]))
	numPatterns := int(binary.LittleEndian.Uint16(hdr[4:]))
	flags := binary.LittleEndian.Uint16(hdr[6:])
	_ = flags

	globalVolume := hdr[16]
	initialSpeed := hdr[17]
	initialTempo := hdr[18]
	masterVolume := hdr[19]

	song.InitialSpeed = int(initialSpeed)
	song.InitialTempo = int(initialTempo)
	song.GlobalVolume = int(globalVolume) * 2
	song.MixingVolume = int(masterVolume & 0x7F)
	song.FastSlides = masterVolume&0x80 == 0

	// Channel settings live outside the hdr block we already read, so pull
	// them from an absolute offset and restore the cursor afterward rather
	// than grow hdr past the range the rest of this function expects.
	savedPos := int64(mf.Tell())
	if _, err := mf.Seek(0x40, SeekSet); err != nil {
		return nil, err
	}
	channelSettings, err := mf.ReadExact(32)
	if err != nil {
		return nil, err
	}
	if _, err := mf.Seek(savedPos, SeekSet); err != nil {
		return nil, err
	}

	numChannels := 0
	for numChannels < 32 && channelSettings[numChannels] != 0xFF {
		numChannels++
	}
	song.Channels = numChannels
	for ch := 0; ch < numChannels; ch++ {
		pan := 32
		if channelSettings[ch]&0x08 != 0 {
			pan = 0 // left-ish; S3M's own Lxx pan command overrides below
		}
		song.ChannelSettings[ch].Pan = pan
	}

	orderBytes, err := mf.ReadExact(numOrders)
	if err != nil {
		return nil, err
	}
	for _, o := range orderBytes {
		if o == 0xFF {
			break
		}
		song.Orders = append(song.Orders, o)
	}

	paraBytes, err := mf.ReadExact((numInstruments + numPatterns) * 2)
	if err != nil {
		return nil, err
	}
	paras := make([]uint16, numInstruments+numPatterns)
	for i := range paras {
		paras[i] = binary.LittleEndian.Uint16(paraBytes[i*2:])
	}

	hasDefaultPan := len(buf) >= 0x50+numOrders+(numInstruments+numPatterns)*2+32 && flags&0 == 0
	_ = hasDefaultPan

	song.Samples = make([]Sample, numInstruments)
	for i := 0; i < numInstruments; i++ {
		if _, err := mf.Seek(int64(paras[i])*16, SeekSet); err != nil {
			return nil, err
		}
		ih, err := mf.ReadExact(0x50)
		if err != nil {
			return nil, err
		}

		sampleType := ih[0]
		if sampleType > 1 {
			continue // adlib instrument slot; leave as an empty sample
		}

		sampLength := binary.LittleEndian.Uint32(ih[16:])
		loopStart := binary.LittleEndian.Uint32(ih[20:])
		loopEnd := binary.LittleEndian.Uint32(ih[24:])
		volume := ih[28]
		sflags := ih[31]
		c4speed := binary.LittleEndian.Uint32(ih[32:])
		nameBytes := ih[48:76]
		memSegHi := ih[13]
		memSegLo := binary.LittleEndian.Uint16(ih[14:])

		is16 := sflags&4 != 0
		isStereo := sflags&2 != 0

		smp := Sample{
			Name:         strings.TrimRight(string(nameBytes), "\x00"),
			Length:       int(sampLength),
			LoopStart:    int(loopStart),
			LoopEnd:      int(loopEnd),
			IsLooped:     sflags&1 != 0,
			Volume:       int(volume),
			GlobalVolume: 64,
			C4Speed:      int(c4speed),
			Is16Bit:      is16,
			IsStereo:     isStereo,
		}

		dataOffset := int64(memSegHi)<<20 | int64(memSegLo)<<4
		if smp.Length > 0 {
			if _, err := mf.Seek(dataOffset, SeekSet); err != nil {
				return nil, err
			}
			sampleFormat := binary.LittleEndian.Uint16(hdr[8:])
			unsigned := sampleFormat != 2

			frames := smp.Length
			channels := 1
			if isStereo {
				channels = 2
			}
			bytesPerSample := 1
			if is16 {
				bytesPerSample = 2
			}
			raw, err := mf.ReadExact(frames * channels * bytesPerSample)
			if err != nil {
				return nil, err
			}
			smp.Data = decodeS3MPCM(raw, is16, unsigned)
		}

		song.Samples[i] = smp
	}

	song.Patterns = make([]*Pattern, numPatterns)
	for i := 0; i < numPatterns; i++ {
		if _, err := mf.Seek(int64(paras[numInstruments+i])*16, SeekSet); err != nil {
			return nil, err
		}
		lenBytes, err := mf.ReadExact(2)
		if err != nil {
			return nil, err
		}
		packedLen := int(binary.LittleEndian.Uint16(lenBytes)) - 2
		if packedLen < 0 {
			packedLen = 0
		}
		packed, err := mf.ReadExact(packedLen)
		if err != nil {
			return nil, err
		}
		song.Patterns[i] = decodeS3MPattern(packed, numChannels)
	}

	song.Instruments = synthesizeInstrumentsFromSamples(song.Samples)

	return song, nil
}

func decodeS3MPCM(raw []byte, is16, unsigned bool) []int16 {
	if is16 {
		n := len(raw) / 2
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			if unsigned {
				v ^= -32768 // flip sign bit: unsigned -> signed
			}
			out[i] = v
		}
		return out
	}

	out := make([]int16, len(raw))
	for i, b := range raw {
		v := b
		if unsigned {
			v ^= 0x80
		}
		out[i] = int16(int8(v)) << 8
	}
	return out
}

// decodeS3MPattern unpacks one S3M packed-pattern block into a 64-row
// Pattern. The skip table handles out-of-range channel indices (used by
// some trackers to stash extra per-row data) by discarding the right
// number of trailing bytes instead of misaligning the rest of the block
// (teacher precedent in s3m.go).
func decodeS3MPattern(packed []byte, channels int) *Pattern {
	pat := NewPattern(64, channels)
	skipTable := [8]int{0, 2, 1, 3, 2, 4, 3, 5}

	pos, row := 0, 0
	for pos < len(packed) && row < 64 {
		b := packed[pos]
		pos++
		if b == 0 {
			row++
			continue
		}

		chn := int(b & 31)
		if chn >= channels {
			skip := skipTable[b>>5]
			pos += skip
			continue
		}

		cell := pat.Cell(row, chn)

		if b&32 != 0 && pos+1 < len(packed) {
			noter := packed[pos]
			instr := packed[pos+1]
			pos += 2
			if noter == 255 {
				cell.Pitch = noNote
			} else if noter == 254 {
				cell.Pitch = noteKeyOff
			} else {
				cell.Pitch = playerNote(12 + 12*int(noter>>4) + int(noter&0xF))
			}
			cell.Sample = int(instr)
		}

		if b&64 != 0 && pos < len(packed) {
			cell.Volume = int(packed[pos])
			pos++
		}

		if b&128 != 0 && pos+1 < len(packed) {
			letter := packed[pos]
			param := packed[pos+1]
			pos += 2
			cell.Effect, cell.Param = s3mEffectLetter(letter, param)
		}
	}

	return pat
}
