package moduleplayer

// hostChannel is one of the song's fixed pattern channels: the thing a
// pattern cell addresses directly. It tracks per-row effect memory
// (portamento targets, vibrato phase, volume-slide rates, ...) that
// persists across rows regardless of which voice is currently sounding on
// it (spec.md §3.5).
type hostChannel struct {
	Note       playerNote
	Instrument int
	Sample     int

	Volume int // 0-64, current column volume
	Pan    int // 0-64

	Period int // Amiga-style period, or linear-frequency equivalent
	Freq   int // resolved playback rate in Hz for the active voice

	// Effect memory: most "continue last value" effects (portamento,
	// vibrato depth, volume slide rate, retrigger count, ...) reuse the
	// previous nonzero parameter when the pattern supplies 0x00.
	PortaSpeed     int
	PortaTarget    int
	VibratoPos     int
	VibratoSpeed   int
	VibratoDepth   int
	TremoloPos     int
	TremoloSpeed   int
	TremoloDepth   int
	VolSlideRate   int
	PanSlideRate   int
	GlobalVolSlide int
	RetrigCount    int
	RetrigTicks    int
	RetrigVolType  int
	OffsetMemory   int
	ArpeggioMemory int
	TremorOnTicks  int
	TremorOffTicks int
	TremorState    bool

	PatternLoopRow   int
	PatternLoopCount int

	LastEffect byte
	LastParam  byte

	Muted bool

	ActiveVoice int // index into Context.voices, or -1
}

// voiceState describes one NNA-allocated "virtual channel" performing the
// actual mixing (spec.md §3.5). A host channel normally owns exactly one
// voice at a time, but NNA can let a released voice keep sounding
// (fading or ringing out) after its host channel has moved on to a new
// note, which is why voices are a separate, larger pool than the channel
// count.
type voiceState struct {
	Active bool

	HostChannel int // which hostChannel spawned this voice
	Instrument  int
	Sample      int

	Note       playerNote
	Pitch      playerNote // after instrument notemap + pitch envelope
	BasePeriod int

	Freq   int
	Volume int // 0-64 channel volume, post envelope/fade scaling
	Pan    int // 0-64

	// NNA lifecycle.
	NoteOff  bool
	Fading   bool
	FadeVol  int // 0-1024, multiplied into final output then scaled down

	// Position within the sample: whole samples in SamplePos, the
	// fraction in SamplePosFrac with mixFracBits bits (mixer.go).
	SamplePos      int64
	SamplePosFrac  int64
	Forward        bool // current ping-pong direction

	// Envelope playback cursors, one tick position per envelope kind.
	VolEnvTick int
	PanEnvTick int
	PitchEnvTick int
	VolEnvDone   bool
	PanEnvDone   bool
	PitchEnvDone bool

	// Volume ramp state for click-free NNA steals and volume-column
	// changes (spec.md §4.6).
	RampVolume     [2]int32 // current L/R integer volume
	RampTargetL    int32
	RampTargetR    int32
	RampRemaining  int

	RandomVolOffset int
	RandomPanOffset int
}

const maxVoices = 256

// newHostChannel returns a hostChannel in its post-song-load idle state.
func newHostChannel() hostChannel {
	return hostChannel{
		ActiveVoice:    -1,
		PatternLoopRow: -1,
	}
}

// newVoiceState returns a voiceState parked as inactive, ready to be
// claimed by the NNA allocator.
func newVoiceState() voiceState {
	return voiceState{Forward: true}
}
