package moduleplayer

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// loadXMFile parses a Fast Tracker 2 Extended Module. XM patterns use a
// compact per-cell encoding (a leading byte with the high bit set
// indicates which of note/instrument/volume/effect/param follow), and
// instruments carry full volume/panning/pitch envelopes, which is why XM
// (unlike MOD) runs on the instrument-aware half of the XM/MOD VM
// (spec.md §4.4.2).
func loadXMFile(buf []byte) (*Song, error) {
	if len(buf) < 60 || !strings.HasPrefix(string(buf), "Extended Module: ") {
		return nil, fmt.Errorf("%w: missing XM signature", ErrBadMagic)
	}

	mf, err := OpenMemoryFile(buf)
	if err != nil {
		return nil, err
	}
	if _, err := mf.Seek(17, SeekSet); err != nil {
		return nil, err
	}
	titleBytes, err := mf.ReadExact(20)
	if err != nil {
		return nil, err
	}
	if _, err := mf.Seek(1, SeekCur); err != nil { // 0x1A marker byte
		return nil, err
	}
	if _, err := mf.ReadExact(20); err != nil { // tracker name
		return nil, err
	}
	verBytes, err := mf.ReadExact(2)
	if err != nil {
		return nil, err
	}
	_ = verBytes

	hdrSizeBytes, err := mf.ReadExact(4)
	if err != nil {
		return nil, err
	}
	headerEnd := mf.Tell() + int(binary.LittleEndian.Uint32(hdrSizeBytes)) - 4

	rest, err := mf.ReadExact(16)
	if err != nil {
		return nil, err
	}
	numOrders := int(binary.LittleEndian.Uint16(rest[0:]))
	restartPos := int(binary.LittleEndian.Uint16(rest[2:]))
	numChannels := int(binary.LittleEndian.Uint16(rest[4:]))
	numPatterns := int(binary.LittleEndian.Uint16(rest[6:]))
	numInstruments := int(binary.LittleEndian.Uint16(rest[8:]))
	flags := binary.LittleEndian.Uint16(rest[10:])
	defaultSpeed := binary.LittleEndian.Uint16(rest[12:])
	defaultTempo := binary.LittleEndian.Uint16(rest[14:])
	_ = restartPos

	song := &Song{
		Type:         SongTypeXM,
		Title:        strings.TrimRight(string(titleBytes), "\x00"),
		Channels:     numChannels,
		InitialSpeed: int(defaultSpeed),
		InitialTempo: int(defaultTempo),
		GlobalVolume: 128,
		MixingVolume: 48,
		LinearSlides: flags&1 != 0,
	}

	orderBytes, err := mf.ReadExact(numOrders)
	if err != nil {
		return nil, err
	}
	song.Orders = append([]byte(nil), orderBytes...)

	if _, err := mf.Seek(int64(headerEnd), SeekSet); err != nil {
		return nil, err
	}

	for ch := 0; ch < numChannels; ch++ {
		song.ChannelSettings[ch].Volume = 64
		song.ChannelSettings[ch].Pan = 32
	}

	song.Patterns = make([]*Pattern, numPatterns)
	for i := 0; i < numPatterns; i++ {
		pat, err := loadXMPattern(mf, numChannels)
		if err != nil {
			return nil, err
		}
		song.Patterns[i] = pat
	}

	song.Instruments = make([]Instrument, numInstruments)
	var samples []Sample
	for i := 0; i < numInstruments; i++ {
		ins, ownSamples, err := loadXMInstrument(mf)
		if err != nil {
			return nil, err
		}
		base := len(samples)
		for n := range ins.Notemap {
			if ins.Notemap[n].Sample > 0 {
				ins.Notemap[n].Sample += base
			}
		}
		song.Instruments[i] = ins
		samples = append(samples, ownSamples...)
	}
	song.Samples = samples

	return song, nil
}

func loadXMPattern(mf *MemoryFile, channels int) (*Pattern, error) {
	hdrLenBytes, err := mf.ReadExact(4)
	if err != nil {
		return nil, err
	}
	hdrLen := int(binary.LittleEndian.Uint32(hdrLenBytes))

	packType, err := mf.ReadByte()
	if err != nil {
		return nil, err
	}
	_ = packType

	countBytes, err := mf.ReadExact(2)
	if err != nil {
		return nil, err
	}
	numRows := int(binary.LittleEndian.Uint16(countBytes))
	if numRows <= 0 {
		numRows = 64
	}

	dataSizeBytes, err := mf.ReadExact(2)
	if err != nil {
		return nil, err
	}
	dataSize := int(binary.LittleEndian.Uint16(dataSizeBytes))

	// hdrLen includes the 4-byte length field itself plus the fields
	// just read; skip anything beyond what a standard 9-byte header has.
	if extra := hdrLen - 4 - 1 - 2 - 2; extra > 0 {
		if _, err := mf.Seek(int64(extra), SeekCur); err != nil {
			return nil, err
		}
	}

	pat := NewPattern(numRows, channels)

	if dataSize == 0 {
		return pat, nil
	}

	packed, err := mf.ReadExact(dataSize)
	if err != nil {
		return nil, err
	}

	pos := 0
	for row := 0; row < numRows; row++ {
		for ch := 0; ch < channels; ch++ {
			if pos >= len(packed) {
				break
			}
			cell := pat.Cell(row, ch)
			cell.Pitch = noNote
			cell.Volume = noNoteVolume

			first := packed[pos]
			if first&0x80 != 0 {
				pos++
				if first&0x01 != 0 {
					n := packed[pos]
					pos++
					if n == 97 {
						cell.Pitch = noteKeyOff
					} else if n > 0 {
						cell.Pitch = playerNote(int(n) - 1)
					}
				}
				if first&0x02 != 0 {
					cell.Sample = int(packed[pos])
					pos++
				}
				if first&0x04 != 0 {
					cell.Volume = int(packed[pos])
					pos++
				}
				if first&0x08 != 0 {
					cell.Effect = xmEffectNumber(packed[pos])
					pos++
				}
				if first&0x10 != 0 {
					cell.Param = packed[pos]
					pos++
				}
			} else {
				n := packed[pos]
				pos++
				if n == 97 {
					cell.Pitch = noteKeyOff
				} else if n > 0 {
					cell.Pitch = playerNote(int(n) - 1)
				}
				cell.Sample = int(packed[pos])
				cell.Volume = int(packed[pos+1])
				cell.Effect = xmEffectNumber(packed[pos+2])
				cell.Param = packed[pos+3]
				pos += 4
			}
		}
	}

	return pat, nil
}

// xmEffectNumber maps XM's 0-35 effect byte onto the shared effect space.
// 0-15 line up with the MOD nibble range already; everything past that is
// XM-only and gets the effectXM* constants.
func xmEffectNumber(e byte) byte {
	switch e {
	case 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0xA, 0xB, 0xC, 0xD, 0xE, 0xF:
		return e
	case 16: // G
		return effectXMSetGlobalVolume
	case 17: // H
		return effectXMGlobalVolumeSlide
	case 20: // K
		return effectXMKeyOff
	case 21: // L
		return effectXMSetEnvelopePosition
	case 25: // P
		return effectXMPanningSlide
	case 27: // R
		return effectXMMultiRetrigNote
	case 29: // T
		return effectXMTremor
	case 33: // X1/X2 extra fine porta, folded to one number; param hi-nibble disambiguates
		return effectXMExtraFinePorta
	default:
		return effectNone
	}
}

func loadXMInstrument(mf *MemoryFile) (Instrument, []Sample, error) {
	hdrSizeBytes, err := mf.ReadExact(4)
	if err != nil {
		return Instrument{}, nil, err
	}
	hdrSize := int(binary.LittleEndian.Uint32(hdrSizeBytes))
	start := mf.Tell() - 4

	nameBytes, err := mf.ReadExact(22)
	if err != nil {
		return Instrument{}, nil, err
	}
	if _, err := mf.ReadByte(); err != nil { // instrument type, always 0
		return Instrument{}, nil, err
	}
	numSamplesBytes, err := mf.ReadExact(2)
	if err != nil {
		return Instrument{}, nil, err
	}
	numSamples := int(binary.LittleEndian.Uint16(numSamplesBytes))

	ins := Instrument{
		Name:            strings.TrimRight(string(nameBytes), "\x00"),
		NNA:             NNANoteCut,
		DCT:             DCTOff,
		GlobalVolume:    128,
		FilterCutoff:    -1,
		FilterResonance: -1,
	}

	if numSamples == 0 {
		if _, err := mf.Seek(int64(start+hdrSize), SeekSet); err != nil {
			return Instrument{}, nil, err
		}
		return ins, nil, nil
	}

	sampHdrSizeBytes, err := mf.ReadExact(4)
	if err != nil {
		return Instrument{}, nil, err
	}
	sampHdrSize := int(binary.LittleEndian.Uint32(sampHdrSizeBytes))

	notemapBytes, err := mf.ReadExact(96)
	if err != nil {
		return Instrument{}, nil, err
	}
	volEnvBytes, err := mf.ReadExact(48)
	if err != nil {
		return Instrument{}, nil, err
	}
	panEnvBytes, err := mf.ReadExact(48)
	if err != nil {
		return Instrument{}, nil, err
	}
	counts, err := mf.ReadExact(12)
	if err != nil {
		return Instrument{}, nil, err
	}
	numVolPoints := int(counts[0])
	numPanPoints := int(counts[1])
	volSustain := counts[2]
	volLoopStart := counts[3]
	volLoopEnd := counts[4]
	panSustain := counts[5]
	panLoopStart := counts[6]
	panLoopEnd := counts[7]
	volType := counts[8]
	panType := counts[9]

	ins.VolumeEnvelope = parseXMEnvelope(volEnvBytes, numVolPoints, volType, int(volSustain), int(volLoopStart), int(volLoopEnd))
	ins.PanningEnvelope = parseXMEnvelope(panEnvBytes, numPanPoints, panType, int(panSustain), int(panLoopStart), int(panLoopEnd))

	vibTypeByte, err := mf.ReadByte()
	if err != nil {
		return Instrument{}, nil, err
	}
	vibSweep, err := mf.ReadByte()
	if err != nil {
		return Instrument{}, nil, err
	}
	vibDepth, err := mf.ReadByte()
	if err != nil {
		return Instrument{}, nil, err
	}
	vibRate, err := mf.ReadByte()
	if err != nil {
		return Instrument{}, nil, err
	}
	_, _, _, _ = vibTypeByte, vibSweep, vibDepth, vibRate
	fadeoutBytes, err := mf.ReadExact(2)
	if err != nil {
		return Instrument{}, nil, err
	}
	ins.FadeOut = int(binary.LittleEndian.Uint16(fadeoutBytes))

	if _, err := mf.Seek(int64(start+hdrSize), SeekSet); err != nil {
		return Instrument{}, nil, err
	}

	sampleHeaders := make([]struct {
		length, loopStart, loopLen         int
		volume                             byte
		finetune                           int8
		flags                              byte
		panning                            byte
		relativeNote                       int8
		name                               string
	}, numSamples)

	for i := 0; i < numSamples; i++ {
		hdr, err := mf.ReadExact(sampHdrSize)
		if err != nil {
			return Instrument{}, nil, err
		}
		sampleHeaders[i].length = int(binary.LittleEndian.Uint32(hdr[0:]))
		sampleHeaders[i].loopStart = int(binary.LittleEndian.Uint32(hdr[4:]))
		sampleHeaders[i].loopLen = int(binary.LittleEndian.Uint32(hdr[8:]))
		sampleHeaders[i].volume = hdr[12]
		sampleHeaders[i].finetune = int8(hdr[13])
		sampleHeaders[i].flags = hdr[14]
		sampleHeaders[i].panning = hdr[15]
		sampleHeaders[i].relativeNote = int8(hdr[16])
		if len(hdr) >= 18+22 {
			sampleHeaders[i].name = strings.TrimRight(string(hdr[18:18+22]), "\x00")
		}
	}

	samples := make([]Sample, numSamples)
	for i := 0; i < numSamples; i++ {
		h := sampleHeaders[i]
		is16 := h.flags&0x10 != 0
		length := h.length
		loopStart := h.loopStart
		loopLen := h.loopLen
		if is16 {
			length /= 2
			loopStart /= 2
			loopLen /= 2
		}

		smp := Sample{
			Name:       h.name,
			Volume:     int(h.volume),
			GlobalVolume: 64,
			Panning:    int(h.panning) * 64 / 255,
			PanningSet: true,
			C4Speed:    xmRelativeNoteToRate(h.relativeNote, h.finetune),
			Length:     length,
			LoopStart:  loopStart,
			LoopEnd:    loopStart + loopLen,
			Is16Bit:    is16,
			IsLooped:   h.flags&0x03 == 1 || h.flags&0x03 == 2,
			IsPingPong: h.flags&0x03 == 2,
		}

		raw, err := mf.ReadExact(h.length)
		if err != nil {
			return Instrument{}, nil, err
		}
		smp.Data = decodeXMDeltaPCM(raw, is16)
		samples[i] = smp
	}

	for n := 0; n < 96 && n < len(notemapBytes); n++ {
		ins.Notemap[n] = NotemapEntry{Note: playerNote(n), Sample: int(notemapBytes[n]) + 1}
	}
	for n := 96; n < 120; n++ {
		ins.Notemap[n] = NotemapEntry{Note: playerNote(n), Sample: 1}
	}

	return ins, samples, nil
}

func parseXMEnvelope(raw []byte, numPoints int, typeFlags byte, sustain, loopStart, loopEnd int) Envelope {
	env := Envelope{
		Enabled:      typeFlags&0x01 != 0,
		Sustain:      typeFlags&0x02 != 0,
		Loop:         typeFlags&0x04 != 0,
		SustainStart: sustain,
		SustainEnd:   sustain,
		LoopStart:    loopStart,
		LoopEnd:      loopEnd,
	}
	if numPoints > 12 {
		numPoints = 12
	}
	env.Nodes = make([]EnvelopeNode, numPoints)
	for i := 0; i < numPoints; i++ {
		tick := int(binary.LittleEndian.Uint16(raw[i*4:]))
		val := int(binary.LittleEndian.Uint16(raw[i*4+2:]))
		env.Nodes[i] = EnvelopeNode{Tick: tick, Value: int8(val)}
	}
	return env
}

// xmRelativeNoteToRate converts XM's (relative note, finetune) pair into
// an equivalent middle-C playback rate, so the mixer can treat XM samples
// identically to IT/S3M ones once loaded.
func xmRelativeNoteToRate(relNote int8, finetune int8) int {
	const baseRate = 8363.0
	semis := float64(relNote) + float64(finetune)/128.0
	return int(baseRate*math.Pow(2, semis/12.0) + 0.5)
}

func decodeXMDeltaPCM(raw []byte, is16 bool) []int16 {
	if is16 {
		n := len(raw) / 2
		out := make([]int16, n)
		var acc int16
		for i := 0; i < n; i++ {
			d := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			acc += d
			out[i] = acc
		}
		return out
	}
	out := make([]int16, len(raw))
	var acc int8
	for i, b := range raw {
		acc += int8(b)
		out[i] = int16(acc) << 8
	}
	return out
}
