package moduleplayer

import "bytes"

// Format identifies which of the two backend VMs a loaded Song runs on.
// It is coarser than SongType: XM and MOD share one VM, IT and S3M the
// other, mirroring the original m4p dispatcher's FORMAT_IT_S3M /
// FORMAT_XM_MOD split (original_source m4p/m4p.c).
type Format int

const (
	FormatUnknown Format = iota
	FormatITS3M
	FormatXMMOD
)

var (
	magicIMPM = []byte("IMPM")
	magicSCRM = []byte("SCRM")
	magicXM   = []byte("Extended Module: ")
)

// modSignatures lists the 4-byte tags MOD files carry at offset 1080,
// keyed by the channel count they imply. This mirrors the table the
// original C dispatcher consults in m4p_TestFromData.
var modSignatures = map[string]int{
	"M.K.": 4, "M!K!": 4, "M&K!": 4, "N.T.": 4, "FLT4": 4,
	"2CHN": 2,
	"6CHN": 6,
	"8CHN": 8, "FLT8": 8, "OCTA": 8, "CD81": 8,
	"TDZ1": 1, "TDZ2": 2, "TDZ3": 3,
	"5CHN": 5, "7CHN": 7, "9CHN": 9,
	"10CH": 10, "11CH": 11, "12CH": 12, "13CH": 13, "14CH": 14,
	"15CH": 15, "16CH": 16, "17CH": 17, "18CH": 18, "19CH": 19,
	"20CH": 20, "21CH": 21, "22CH": 22, "23CH": 23, "24CH": 24,
	"25CH": 25, "26CH": 26, "27CH": 27, "28CH": 28, "29CH": 29,
	"30CH": 30, "31CH": 31, "32CH": 32,
}

// TestFromData sniffs buf and reports which backend, if any, would load
// it. It does not validate the full file, only the signature, matching
// the original m4p_TestFromData's role as a quick probe before the
// caller commits to a full LoadFromData (original_source m4p/m4p.c).
func TestFromData(buf []byte) Format {
	if isMMCMP(buf) {
		unpacked, err := mmcmpDecompress(buf)
		if err != nil {
			return FormatUnknown
		}
		return TestFromData(unpacked)
	}

	if len(buf) >= 4 && bytes.Equal(buf[0:4], magicIMPM) {
		return FormatITS3M
	}
	if len(buf) >= 4+0x2c && bytes.Equal(buf[0x2c:0x2c+4], magicSCRM) {
		return FormatITS3M
	}
	if len(buf) >= len(magicXM) && bytes.Equal(buf[:len(magicXM)], magicXM) {
		return FormatXMMOD
	}
	if len(buf) >= 1084 {
		if _, ok := modSignatures[string(buf[1080:1084])]; ok {
			return FormatXMMOD
		}
	}

	return FormatUnknown
}

// Context bundles one loaded song together with all of the mutable state
// that playing it requires: host channels, the voice pool, the shared
// PRNG, the MIDI macro DFA, and the allocator hook. Nearly every package
// function has both a Context method and a package-level wrapper that
// forwards to Default, mirroring the original library's single
// implicit "current song" global (original_source m4p/m4p.c:
// m4p_PlaySong/m4p_GenerateSamples operate on one implicit instance).
type Context struct {
	alloc Allocator

	song   *Song
	format Format

	sampleRate int

	channels []hostChannel
	voices   []voiceState

	rng *itRand
	mm  *midiMacroState

	order   int
	row     int
	tick    int
	speed   int
	tempo   int
	playing bool

	globalVolume int

	samplesPerTick    int
	samplesPerTickFrac int
	tickSampleCounter int

	patternDelay  int
	rowDelay      int
	rowDelayCont  bool
	breakToOrder  int
	breakToRow    int
	patternBreak  bool
	orderJump     bool
}

// Default is the implicit current-song context every package-level
// function operates on, matching the original C library's single global
// player instance.
var Default = NewContext()

// NewContext allocates a fresh, empty Context with the default allocator
// and PRNG seed.
func NewContext() *Context {
	return &Context{
		alloc: defaultAllocator(),
		rng:   newITRand(),
		mm:    newMIDIMacroState(),
	}
}

// Load parses buf (transparently unwrapping an MMCMP container if
// present) and installs the result as this Context's current song. On
// failure the Context's previous song, if any, is left untouched. Unlike
// LoadFromData, it returns the specific error instead of collapsing
// everything to a boolean, for callers (like cmd/moddump) that want to
// report why a file failed to load.
func (c *Context) Load(buf []byte) error {
	format := TestFromData(buf)
	if format == FormatUnknown {
		return ErrBadMagic
	}

	raw := buf
	if isMMCMP(buf) {
		unpacked, err := mmcmpDecompress(buf)
		if err != nil {
			return err
		}
		raw = unpacked
	}

	var song *Song
	var err error

	switch {
	case len(raw) >= 4 && bytes.Equal(raw[0:4], magicIMPM):
		song, err = loadITFile(raw)
	case len(raw) >= 0x30 && bytes.Equal(raw[0x2c:0x2c+4], magicSCRM):
		song, err = loadS3MFile(raw)
	case len(raw) >= len(magicXM) && bytes.Equal(raw[:len(magicXM)], magicXM):
		song, err = loadXMFile(raw)
	case len(raw) >= 1084:
		song, err = loadMODFile(raw)
	default:
		return ErrBadMagic
	}
	if err != nil {
		return err
	}

	c.installSong(song, format)
	return nil
}

// Load loads buf into the package-level Default context, returning the
// specific error on failure.
func Load(buf []byte) error { return Default.Load(buf) }

// LoadFromData loads buf into this Context, collapsing any failure to a
// bool, matching the original C ABI's m4p_LoadFromData contract
// (original_source m4p/m4p.c).
func (c *Context) LoadFromData(buf []byte) bool {
	return c.Load(buf) == nil
}

// LoadFromData loads buf into the package-level Default context.
func LoadFromData(buf []byte) bool { return Default.LoadFromData(buf) }

func (c *Context) installSong(song *Song, format Format) {
	c.song = song
	c.format = format
	c.channels = make([]hostChannel, song.Channels)
	for i := range c.channels {
		c.channels[i] = newHostChannel()
		c.channels[i].Pan = song.ChannelSettings[i].Pan
		c.channels[i].Muted = song.ChannelSettings[i].Muted
	}
	c.voices = make([]voiceState, maxVoices)
	for i := range c.voices {
		c.voices[i] = newVoiceState()
	}
	c.rng.seed()
	c.globalVolume = song.GlobalVolume
	c.speed = song.InitialSpeed
	c.tempo = song.InitialTempo
	c.order = 0
	c.row = 0
	c.tick = 0
	c.breakToOrder = -1
	c.breakToRow = -1
}

// PlaySong begins playback from the start of the order list at the given
// output sample rate, resetting all channel and voice state.
func (c *Context) PlaySong(sampleRate int) error {
	if c.song == nil {
		return ErrNoSongLoaded
	}
	c.sampleRate = sampleRate
	c.order = 0
	c.row = -1
	c.tick = 0
	c.patternDelay = 0
	c.rowDelay = 1
	c.rowDelayCont = false
	c.playing = true
	c.recomputeTickLength()
	return nil
}

// PlaySong plays the Default context's current song.
func PlaySong(sampleRate int) error { return Default.PlaySong(sampleRate) }

// Song returns the Context's currently loaded song, or nil.
func (c *Context) Song() *Song { return c.song }

// Stop halts playback in place without discarding the loaded song, so a
// subsequent PlaySong resumes a clean restart.
func (c *Context) Stop() { c.playing = false }

// Stop halts the Default context's playback.
func Stop() { Default.Stop() }

// FreeSong releases the current song and all derived channel/voice state.
// After FreeSong, GenerateSamples silently returns zero-filled buffers
// until a new LoadFromData succeeds, matching the original library's
// "never crash on a null song pointer" contract.
func (c *Context) FreeSong() {
	c.song = nil
	c.channels = nil
	c.voices = nil
	c.playing = false
}

// FreeSong releases the Default context's song.
func FreeSong() { Default.FreeSong() }

// Close releases any resources held by the Context. Provided for ABI
// symmetry with the original m4p_Close; Go's GC makes it a no-op beyond
// FreeSong.
func (c *Context) Close() { c.FreeSong() }

// Close releases the Default context.
func Close() { Default.Close() }

func (c *Context) recomputeTickLength() {
	// samples-per-tick = sampleRate * 2.5 / tempo, computed with 16
	// fractional bits (spec.md §4.7). Ticks run for the whole part
	// (samplesPerTick); the fraction is stored in samplesPerTickFrac but
	// not carried from tick to tick.
	const fracBits = 16
	num := int64(c.sampleRate) * 5
	den := int64(c.tempo) * 2
	whole := (num << fracBits) / den
	c.samplesPerTick = int(whole >> fracBits)
	c.samplesPerTickFrac = int(whole & ((1 << fracBits) - 1))
}
