package moduleplayer

import (
	"fmt"
	"math"
	"strings"
)

const modRowsPerPattern = 64

// loadMODFile parses a ProTracker-family MOD file into a Song. Channel
// count is recovered from the 4-byte signature at offset 1080; anything
// not in modSignatures is rejected rather than guessed at, matching the
// original dispatcher's all-or-nothing signature test
// (original_source m4p/m4p.c).
func loadMODFile(buf []byte) (*Song, error) {
	mf, err := OpenMemoryFile(buf)
	if err != nil {
		return nil, err
	}

	titleBytes, err := mf.ReadExact(20)
	if err != nil {
		return nil, err
	}

	song := &Song{
		Type:         SongTypeMOD,
		Title:        strings.TrimRight(string(titleBytes), "\x00"),
		InitialSpeed: 6,
		InitialTempo: 125,
		GlobalVolume: 128,
		MixingVolume: 48,
	}

	samples := make([]Sample, 31)
	for i := range samples {
		s, err := readMODSampleInfo(mf)
		if err != nil {
			return nil, err
		}
		samples[i] = s
	}

	numOrders, err := mf.ReadByte()
	if err != nil {
		return nil, err
	}
	if _, err := mf.ReadByte(); err != nil { // historic "restart position" byte
		return nil, err
	}
	orderTable, err := mf.ReadExact(128)
	if err != nil {
		return nil, err
	}
	if numOrders == 0 || int(numOrders) > 128 {
		return nil, fmt.Errorf("%w: order count %d", ErrInvalid, numOrders)
	}
	song.Orders = append([]byte(nil), orderTable[:numOrders]...)

	numPatterns := int(song.Orders[0])
	for _, o := range song.Orders {
		if int(o) > numPatterns {
			numPatterns = int(o)
		}
	}
	numPatterns++

	sig, err := mf.ReadExact(4)
	if err != nil {
		return nil, err
	}
	channels, ok := modSignatures[string(sig)]
	if !ok {
		return nil, fmt.Errorf("%w: MOD signature %q", ErrBadMagic, sig)
	}
	song.Channels = channels

	song.Patterns = make([]*Pattern, numPatterns)
	const bytesPerCell = 4
	for i := 0; i < numPatterns; i++ {
		cellBytes, err := mf.ReadExact(modRowsPerPattern * channels * bytesPerCell)
		if err != nil {
			return nil, err
		}
		pat := NewPattern(modRowsPerPattern, channels)
		for p := 0; p < modRowsPerPattern*channels; p++ {
			n := noteFromMODBytes(cellBytes[p*bytesPerCell : (p+1)*bytesPerCell])
			pat.Cells[p] = n
		}
		song.Patterns[i] = pat
	}

	for i := range samples {
		n := samples[i].Length
		if n > mf.Len()-mf.Tell() {
			n = mf.Len() - mf.Tell()
		}
		raw, err := mf.ReadExact(n)
		if err != nil {
			return nil, err
		}
		widened := make([]int16, n)
		for j, b := range raw {
			widened[j] = int16(int8(b)) << 8
		}
		samples[i].Data = widened
		samples[i].Length = n
	}
	song.Samples = samples

	song.Instruments = synthesizeInstrumentsFromSamples(samples)

	for ch := 0; ch < song.Channels; ch++ {
		song.ChannelSettings[ch].Volume = 64
		song.ChannelSettings[ch].Pan = modDefaultPan(ch)
	}

	return song, nil
}

// modDefaultPan reproduces ProTracker's hard-panned LRRL layout.
func modDefaultPan(channel int) int {
	if channel%4 == 0 || channel%4 == 3 {
		return 0
	}
	return 64
}

func readMODSampleInfo(mf *MemoryFile) (Sample, error) {
	nameBytes, err := mf.ReadExact(22)
	if err != nil {
		return Sample{}, err
	}
	rest, err := mf.ReadExact(8)
	if err != nil {
		return Sample{}, err
	}

	length := int(rest[0])<<9 | int(rest[1])<<1
	fineTuneRaw := rest[2]
	volume := int(rest[3])
	loopStart := int(rest[4])<<9 | int(rest[5])<<1
	loopLen := int(rest[6])<<9 | int(rest[7])<<1

	s := Sample{
		Name:         strings.TrimRight(string(nameBytes), "\x00"),
		Length:       length,
		Volume:       volume,
		GlobalVolume: 64,
		LoopStart:    loopStart,
		LoopEnd:      loopStart + loopLen,
		C4Speed:      modFinetuneToRate(fineTuneRaw),
	}
	if loopLen < 4 {
		s.LoopStart, s.LoopEnd, loopLen = 0, 0, 0
	}

	if s.LoopEnd > s.Length {
		dx := s.LoopEnd - s.Length
		s.LoopStart -= dx
		if s.LoopStart < 0 {
			s.LoopStart = 0
		}
		if s.LoopEnd-s.LoopStart > s.Length {
			s.LoopEnd = s.Length
		}
	}
	s.IsLooped = s.LoopEnd-s.LoopStart >= 2

	return s, nil
}

// modFinetuneToRate converts a 4-bit signed finetune nibble to a middle-C
// sample rate, matching ProTracker's 8.363 kHz base with ~1/8 semitone
// steps per finetune unit.
func modFinetuneToRate(raw byte) int {
	ft := int(raw&7) - int(raw&8)
	const baseRate = 8363.0
	rate := baseRate * math.Pow(2.0, float64(ft)/96.0)
	return int(rate + 0.5)
}

func noteFromMODBytes(nb []byte) note {
	period := int(nb[0]&0xF)<<8 | int(nb[1])
	n := note{
		Sample: int(nb[0]&0xF0) | int(nb[2]>>4),
		Pitch:  noNote,
		Volume: noNoteVolume,
		Effect: nb[2] & 0xF,
		Param:  nb[3],
	}
	if period > 0 {
		n.Pitch = modPeriodToPlayerNote(period)
	}
	return n
}

const modPeriodBase = 13696 // Amiga period for C-0 (note 0) in our octave*12+note scheme

// modPeriodToPlayerNote converts an Amiga period into the engine's linear
// semitone index, lifted (per the teacher's own comment) from libxmp's
// period-to-note formula.
func modPeriodToPlayerNote(period int) playerNote {
	if period <= 0 {
		return noNote
	}
	calc := 12.0 * math.Log(float64(modPeriodBase)/float64(period)) / math.Ln2
	return playerNote(math.Floor(calc + 0.5))
}

// synthesizeInstrumentsFromSamples builds one trivial Instrument per
// sample slot for formats with no instrument indirection layer (MOD,
// S3M), so the player VM can always address Song.Instruments regardless
// of format (spec.md §3.4).
func synthesizeInstrumentsFromSamples(samples []Sample) []Instrument {
	instruments := make([]Instrument, len(samples))
	for i := range samples {
		ins := Instrument{
			Name:            samples[i].Name,
			NNA:             NNANoteCut,
			DCT:             DCTOff,
			GlobalVolume:    128,
			FilterCutoff:    -1,
			FilterResonance: -1,
		}
		for n := range ins.Notemap {
			ins.Notemap[n] = NotemapEntry{Note: playerNote(n), Sample: i + 1}
		}
		instruments[i] = ins
	}
	return instruments
}
