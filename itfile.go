package moduleplayer

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	itSampFlagHeader     = 0x01
	itSampFlag16Bit      = 0x02
	itSampFlagStereo     = 0x04
	itSampFlagCompressed = 0x08
	itSampFlagLoop       = 0x10
	itSampFlagSustain    = 0x20
	itSampFlagPingPong   = 0x40
	itSampFlagPingSustain = 0x80

	itSampConvSigned    = 0x01
	itSampConvBigEndian = 0x02
	itSampConvDelta     = 0x04
	itSampConvByteDelta = 0x08
	itSampConvTxWave    = 0x10

	itEnvFlagEnabled = 0x01
	itEnvFlagLoop    = 0x02
	itEnvFlagSustain = 0x04
	itEnvFlagFilter  = 0x80

	// Pattern mask-memory bits (spec.md §3.3's compact per-cell encoding).
	itPmaskNote       = 0x01
	itPmaskIns        = 0x02
	itPmaskVol        = 0x04
	itPmaskEffect     = 0x08
	itPmaskLastNote   = 0x10
	itPmaskLastIns    = 0x20
	itPmaskLastVol    = 0x40
	itPmaskLastEffect = 0x80
)

// loadITFile parses an Impulse Tracker module. The instrument/sample/
// pattern tables are each reached through a parapointer array, and
// patterns use a "mask memory" scheme where a channel's previous
// note/instrument/volume/effect is implicitly repeated unless the
// channel's mask byte says otherwise (grounded on mukunda/modlib's
// itmod/itmod.go).
func loadITFile(buf []byte) (*Song, error) {
	if len(buf) < 4 || string(buf[0:4]) != "IMPM" {
		return nil, fmt.Errorf("%w: missing IMPM tag", ErrBadMagic)
	}

	mf, err := OpenMemoryFile(buf)
	if err != nil {
		return nil, err
	}
	if _, err := mf.Seek(4, SeekSet); err != nil {
		return nil, err
	}

	titleBytes, err := mf.ReadExact(26)
	if err != nil {
		return nil, err
	}
	hl, err := mf.ReadExact(2)
	if err != nil {
		return nil, err
	}
	_ = hl // highlight info, not consumed by playback

	counts, err := mf.ReadExact(8) // OrdNum, InsNum, SmpNum, PatNum
	if err != nil {
		return nil, err
	}
	numOrders := int(binary.LittleEndian.Uint16(counts[0:]))
	numInstruments := int(binary.LittleEndian.Uint16(counts[2:]))
	numSamples := int(binary.LittleEndian.Uint16(counts[4:]))
	numPatterns := int(binary.LittleEndian.Uint16(counts[6:]))

	verHdr, err := mf.ReadExact(4) // Cwt/v, Cmwt
	if err != nil {
		return nil, err
	}
	_ = verHdr

	flagsBytes, err := mf.ReadExact(4) // Flags, Special
	if err != nil {
		return nil, err
	}
	flags := binary.LittleEndian.Uint16(flagsBytes[0:])

	misc, err := mf.ReadExact(8) // GV, MV, IS, IT, Sep, PWD, MsgLength, MsgOffset... (trimmed to fit)
	if err != nil {
		return nil, err
	}

	song := &Song{
		Type:           SongTypeIT,
		Title:          strings.TrimRight(string(titleBytes), "\x00"),
		GlobalVolume:   int(misc[0]) * 2,
		MixingVolume:   int(misc[1]),
		InitialSpeed:   int(misc[2]),
		InitialTempo:   int(misc[3]),
		LinearSlides:   flags&0x08 != 0,
		OldEffects:     flags&0x80 != 0,
		CompatGxx:      flags&0x100 != 0,
		InstrumentMode: flags&0x04 != 0,
	}

	if _, err := mf.Seek(4, SeekCur); err != nil { // Reserved/message pointer
		return nil, err
	}
	if _, err := mf.Seek(8, SeekCur); err != nil { // CreatedWith/Reserved padding
		return nil, err
	}

	panBytes, err := mf.ReadExact(64)
	if err != nil {
		return nil, err
	}
	volBytes, err := mf.ReadExact(64)
	if err != nil {
		return nil, err
	}
	numChannels := 0
	for ch := 0; ch < 64; ch++ {
		song.ChannelSettings[ch].Pan = int(panBytes[ch] & 0x7F)
		song.ChannelSettings[ch].Surround = panBytes[ch]&0x80 != 0
		song.ChannelSettings[ch].Volume = int(volBytes[ch])
		if panBytes[ch] != 0xA0 {
			numChannels = ch + 1
		}
	}
	if numChannels == 0 {
		numChannels = 1
	}
	song.Channels = numChannels

	orderBytes, err := mf.ReadExact(numOrders)
	if err != nil {
		return nil, err
	}
	song.Orders = append([]byte(nil), orderBytes...)

	paraBytes, err := mf.ReadExact((numInstruments + numSamples + numPatterns) * 4)
	if err != nil {
		return nil, err
	}
	paras := make([]uint32, numInstruments+numSamples+numPatterns)
	for i := range paras {
		paras[i] = binary.LittleEndian.Uint32(paraBytes[i*4:])
	}
	insParas := paras[:numInstruments]
	smpParas := paras[numInstruments : numInstruments+numSamples]
	patParas := paras[numInstruments+numSamples:]

	song.Samples = make([]Sample, numSamples)
	for i := 0; i < numSamples; i++ {
		if smpParas[i] == 0 {
			continue
		}
		if _, err := mf.Seek(int64(smpParas[i]), SeekSet); err != nil {
			return nil, err
		}
		smp, err := loadITSample(mf)
		if err != nil {
			return nil, err
		}
		song.Samples[i] = smp
	}

	if song.InstrumentMode && numInstruments > 0 {
		song.Instruments = make([]Instrument, numInstruments)
		for i := 0; i < numInstruments; i++ {
			if insParas[i] == 0 {
				continue
			}
			if _, err := mf.Seek(int64(insParas[i]), SeekSet); err != nil {
				return nil, err
			}
			ins, err := loadITInstrument(mf)
			if err != nil {
				return nil, err
			}
			song.Instruments[i] = ins
		}
	} else {
		song.Instruments = synthesizeInstrumentsFromSamples(song.Samples)
	}

	song.Patterns = make([]*Pattern, numPatterns)
	for i := 0; i < numPatterns; i++ {
		if patParas[i] == 0 {
			song.Patterns[i] = NewPattern(64, numChannels)
			continue
		}
		if _, err := mf.Seek(int64(patParas[i]), SeekSet); err != nil {
			return nil, err
		}
		pat, err := loadITPattern(mf, numChannels)
		if err != nil {
			return nil, err
		}
		song.Patterns[i] = pat
	}

	return song, nil
}

func loadITSample(mf *MemoryFile) (Sample, error) {
	hdr, err := mf.ReadExact(0x50 - 4)
	if err != nil {
		return Sample{}, err
	}
	dosName := hdr[0:12]
	flags := hdr[13]
	volume := hdr[14]
	nameBytes := hdr[16:16+26]
	cvt := hdr[42]
	defPan := hdr[43]
	length := binary.LittleEndian.Uint32(hdr[44:])
	loopBegin := binary.LittleEndian.Uint32(hdr[48:])
	loopEnd := binary.LittleEndian.Uint32(hdr[52:])
	c5speed := binary.LittleEndian.Uint32(hdr[56:])
	sustainBegin := binary.LittleEndian.Uint32(hdr[60:])
	sustainEnd := binary.LittleEndian.Uint32(hdr[64:])
	dataOffset := binary.LittleEndian.Uint32(hdr[68:])
	vibSpeed := hdr[72]
	vibDepth := hdr[73]
	vibRate := hdr[74]
	vibType := hdr[75]
	_ = dosName

	smp := Sample{
		Name:         strings.TrimRight(string(nameBytes), "\x00"),
		GlobalVolume: int(hdr[15]),
		Volume:       int(volume),
		Panning:      int(defPan & 0x7F),
		PanningSet:   defPan&0x80 != 0,
		C4Speed:      int(c5speed),
		Length:       int(length),
		LoopStart:    int(loopBegin),
		LoopEnd:      int(loopEnd),
		SustainStart: int(sustainBegin),
		SustainEnd:   int(sustainEnd),
		Is16Bit:      flags&itSampFlag16Bit != 0,
		IsStereo:     flags&itSampFlagStereo != 0,
		IsLooped:     flags&itSampFlagLoop != 0,
		IsPingPong:   flags&itSampFlagPingPong != 0,
		HasSustainLoop:  flags&itSampFlagSustain != 0,
		SustainPingPong: flags&itSampFlagPingSustain != 0,
		VibratoSpeed:    vibSpeed,
		VibratoDepth:    vibDepth,
		VibratoRate:     vibRate,
		VibratoType:     vibType,
	}

	if flags&itSampFlagHeader == 0 || smp.Length == 0 {
		return smp, nil
	}

	if _, err := mf.Seek(int64(dataOffset), SeekSet); err != nil {
		return Sample{}, err
	}

	channels := 1
	if smp.IsStereo {
		channels = 2
	}
	frames := smp.Length * channels

	if flags&itSampFlagCompressed != 0 {
		codec := &itSampleCodec{It215: cvt&0x20 == 0, Is16: smp.Is16Bit}
		smp.Data = make([]int16, frames)
		if err := codec.decode(mf, smp.Data, frames); err != nil {
			return Sample{}, err
		}
	} else {
		bps := 1
		if smp.Is16Bit {
			bps = 2
		}
		raw, err := mf.ReadExact(frames * bps)
		if err != nil {
			return Sample{}, err
		}
		smp.Data = decodeITRawPCM(raw, smp.Is16Bit, cvt&itSampConvSigned == 0)
	}

	return smp, nil
}

func decodeITRawPCM(raw []byte, is16, unsigned bool) []int16 {
	if is16 {
		n := len(raw) / 2
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			if unsigned {
				v ^= -32768
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

func loadITInstrument(mf *MemoryFile) (Instrument, error) {
	hdr, err := mf.ReadExact(0xC2 - 4)
	if err != nil {
		return Instrument{}, err
	}

	nna := hdr[13]
	dct := hdr[14]
	dca := hdr[15]
	fadeout := binary.LittleEndian.Uint16(hdr[16:])
	pps := int8(hdr[18])
	ppc := hdr[19]
	globalVol := hdr[20]
	defPan := hdr[21]
	randVol := hdr[22]
	randPan := hdr[23]
	nameBytes := hdr[26:26+26]
	filterCutoff := hdr[64]
	filterResonance := hdr[65]

	ins := Instrument{
		Name:               strings.TrimRight(string(nameBytes), "\x00"),
		NNA:                NewNoteAction(nna),
		DCT:                DuplicateCheckType(dct),
		DCA:                DuplicateCheckAction(dca),
		FadeOut:            int(fadeout),
		PitchPanSeparation: int(pps),
		PitchPanCenter:     playerNote(ppc),
		GlobalVolume:       int(globalVol),
		DefaultPan:         int(defPan & 0x7F),
		DefaultPanSet:      defPan&0x80 == 0,
		RandomVolume:       int(randVol),
		RandomPan:          int(randPan),
		FilterCutoff:       -1,
		FilterResonance:    -1,
	}
	if filterCutoff&0x80 != 0 {
		ins.FilterCutoff = int(filterCutoff & 0x7F)
	}
	if filterResonance&0x80 != 0 {
		ins.FilterResonance = int(filterResonance & 0x7F)
	}

	notemapBytes := hdr[66 : 66+240]
	for n := 0; n < 120; n++ {
		ins.Notemap[n] = NotemapEntry{
			Note:   playerNote(notemapBytes[n*2]),
			Sample: int(notemapBytes[n*2+1]),
		}
	}

	volEnv, err := loadITEnvelope(mf, false)
	if err != nil {
		return Instrument{}, err
	}
	panEnv, err := loadITEnvelope(mf, false)
	if err != nil {
		return Instrument{}, err
	}
	pitchEnv, err := loadITEnvelope(mf, true)
	if err != nil {
		return Instrument{}, err
	}
	ins.VolumeEnvelope = volEnv
	ins.PanningEnvelope = panEnv
	ins.PitchEnvelope = pitchEnv

	return ins, nil
}

func loadITEnvelope(mf *MemoryFile, maybeFilter bool) (Envelope, error) {
	hdr, err := mf.ReadExact(2)
	if err != nil {
		return Envelope{}, err
	}
	flags := hdr[0]
	numNodes := int(hdr[1])

	ranges, err := mf.ReadExact(3)
	if err != nil {
		return Envelope{}, err
	}
	loopStart, loopEnd, sustainStart := int(ranges[0]), int(ranges[1]), int(ranges[2])

	sustainEndByte, err := mf.ReadExact(1)
	if err != nil {
		return Envelope{}, err
	}
	sustainEnd := int(sustainEndByte[0])

	env := Envelope{
		Enabled:      flags&itEnvFlagEnabled != 0,
		Loop:         flags&itEnvFlagLoop != 0,
		Sustain:      flags&itEnvFlagSustain != 0,
		Filter:       maybeFilter && flags&itEnvFlagFilter != 0,
		LoopStart:    loopStart,
		LoopEnd:      loopEnd,
		SustainStart: sustainStart,
		SustainEnd:   sustainEnd,
		Nodes:        make([]EnvelopeNode, 25),
	}

	for i := range env.Nodes {
		nb, err := mf.ReadExact(3)
		if err != nil {
			return Envelope{}, err
		}
		env.Nodes[i] = EnvelopeNode{Value: int8(nb[0]), Tick: int(int16(binary.LittleEndian.Uint16(nb[1:])))}
	}
	env.Nodes = env.Nodes[:numNodes]

	return env, nil
}

// loadITPattern decodes the mask-memory packed pattern block starting at
// the current cursor.
func loadITPattern(mf *MemoryFile, channels int) (*Pattern, error) {
	lenRowBytes, err := mf.ReadExact(4)
	if err != nil {
		return nil, err
	}
	packedLen := int(binary.LittleEndian.Uint16(lenRowBytes[0:]))
	numRows := int(binary.LittleEndian.Uint16(lenRowBytes[2:]))
	if numRows <= 0 {
		numRows = 64
	}

	if _, err := mf.Seek(4, SeekCur); err != nil { // reserved
		return nil, err
	}

	packed, err := mf.ReadExact(packedLen)
	if err != nil {
		return nil, err
	}

	pat := NewPattern(numRows, channels)

	lastMask := make([]byte, 64)
	lastNote := make([]playerNote, 64)
	lastIns := make([]int, 64)
	lastVol := make([]int, 64)
	lastEffect := make([]byte, 64)
	lastParam := make([]byte, 64)

	pos, row := 0, 0
	for pos < len(packed) && row < numRows {
		chanByte := packed[pos]
		pos++
		if chanByte == 0 {
			row++
			continue
		}

		chn := int(chanByte&0x7F) - 1
		var mask byte
		if chanByte&0x80 != 0 {
			if pos >= len(packed) {
				break
			}
			mask = packed[pos]
			pos++
			if chn >= 0 && chn < 64 {
				lastMask[chn] = mask
			}
		} else if chn >= 0 && chn < 64 {
			mask = lastMask[chn]
		}

		if chn < 0 || chn >= channels {
			// Channel beyond what this pattern declares; still have to
			// consume the bytes the mask implies to stay aligned.
			pos += itMaskByteCount(mask)
			continue
		}

		cell := pat.Cell(row, chn)
		cell.Pitch = noNote
		cell.Volume = noNoteVolume

		if mask&itPmaskNote != 0 {
			nb := packed[pos]
			pos++
			var pn playerNote
			switch {
			case nb == 255:
				pn = noNote
			case nb == 254:
				pn = noteKeyOff
			default:
				pn = playerNote(nb)
			}
			cell.Pitch = pn
			lastNote[chn] = pn
		} else if mask&itPmaskLastNote != 0 {
			cell.Pitch = lastNote[chn]
		}

		if mask&itPmaskIns != 0 {
			cell.Sample = int(packed[pos])
			pos++
			lastIns[chn] = cell.Sample
		} else if mask&itPmaskLastIns != 0 {
			cell.Sample = lastIns[chn]
		}

		if mask&itPmaskVol != 0 {
			v := int(packed[pos])
			pos++
			cell.VolCmd, cell.VolParam = itTranslateVolume(v)
			cell.Volume = v
			lastVol[chn] = v
		} else if mask&itPmaskLastVol != 0 {
			v := lastVol[chn]
			cell.VolCmd, cell.VolParam = itTranslateVolume(v)
			cell.Volume = v
		}

		if mask&itPmaskEffect != 0 {
			letter := packed[pos]
			param := packed[pos+1]
			pos += 2
			cell.Effect, cell.Param = s3mEffectLetter(letter, param)
			lastEffect[chn] = letter
			lastParam[chn] = param
		} else if mask&itPmaskLastEffect != 0 {
			cell.Effect, cell.Param = s3mEffectLetter(lastEffect[chn], lastParam[chn])
		}
	}

	return pat, nil
}

func itMaskByteCount(mask byte) int {
	n := 0
	if mask&itPmaskNote != 0 {
		n++
	}
	if mask&itPmaskIns != 0 {
		n++
	}
	if mask&itPmaskVol != 0 {
		n++
	}
	if mask&itPmaskEffect != 0 {
		n += 2
	}
	return n
}

// itTranslateVolume buckets an IT volume-column byte into a command and
// parameter pair, mirroring mukunda/modlib's translatePatternVolume
// ranges (0-64 direct volume, 65-74 fine vol up, ... 128-192 panning,
// 193-202 tone portamento).
func itTranslateVolume(v int) (cmd, param byte) {
	switch {
	case v <= 64:
		return volCmdVolume, byte(v)
	case v >= 65 && v <= 74:
		return volCmdFineVolUp, byte(v - 65)
	case v >= 75 && v <= 84:
		return volCmdFineVolDown, byte(v - 75)
	case v >= 85 && v <= 94:
		return volCmdVolSlideUp, byte(v - 85)
	case v >= 95 && v <= 104:
		return volCmdVolSlideDown, byte(v - 95)
	case v >= 105 && v <= 114:
		return volCmdPortaDown, byte(v - 105)
	case v >= 115 && v <= 124:
		return volCmdPortaUp, byte(v - 115)
	case v >= 128 && v <= 192:
		return volCmdPanning, byte(v - 128)
	case v >= 193 && v <= 202:
		return volCmdPortaToNote, byte(v - 193)
	case v >= 203 && v <= 212:
		return volCmdVibrato, byte(v - 203)
	default:
		return volCmdNone, 0
	}
}
