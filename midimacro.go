package moduleplayer

// midiMacroState tracks the IT "Zxx" MIDI macro mechanism. Real hardware
// MIDI output is out of scope (spec.md §7 Non-goals): instead of
// emitting bytes, the macro's Z-parameterized SFx/Zxx commands are
// interpreted internally as a resonant low-pass filter cutoff/resonance
// pair, which is what every modern IT-compatible mixer actually uses
// them for (spec.md §4.5).
type midiMacroState struct {
	macros    [16]string // SF0-SF9, SFA-SFF
	fixedMacros [128]string // Zxx lookups, keyed by the low 7 bits of param

	activeMacro int

	cutoff    int // 0-127, 127 = filter disabled
	resonance int // 0-127
}

func newMIDIMacroState() *midiMacroState {
	m := &midiMacroState{cutoff: 127}
	return m
}

// ApplyZxx interprets one Zxx command's parameter against the active
// macro, updating the simulated filter state. Filters that resolve to
// cutoff 127 with zero resonance are a no-op pass-through.
func (m *midiMacroState) ApplyZxx(param byte) {
	switch {
	case param < 0x80:
		m.cutoff = int(param) & 0x7F
	default:
		// SFx (0x80-0xFF): selects which of the 16 macro slots later Zxx
		// values key into. Interpretation of the macro string itself is
		// out of scope since we never touch real MIDI bytes; only the
		// cutoff/resonance simulation survives.
		m.activeMacro = int(param-0x80) & 0xF
	}
}

// SetResonance applies a channel's Sxx-derived filter resonance
// parameter (0-127).
func (m *midiMacroState) SetResonance(r int) {
	if r < 0 {
		r = 0
	}
	if r > 127 {
		r = 127
	}
	m.resonance = r
}

// FilterActive reports whether the simulated resonant low-pass should be
// applied to this channel's output this tick.
func (m *midiMacroState) FilterActive() bool {
	return m.cutoff < 127 || m.resonance > 0
}

// resonantLowPass is a one-pole low-pass filter whose cutoff maps to a
// frequency via an exponential curve. Resonance is stored in fb, but
// Process does not use it, so the output has no resonant peak. The mixers
// do not run this filter; FilterActive only reports the macro state.
type resonantLowPass struct {
	a0, b1, fb float64
	y1         float64
}

func newResonantLowPass(cutoff, resonance int, sampleRate int) *resonantLowPass {
	// Empirical IT-style curve: cutoff 0 is 110 Hz and cutoff 127 is
	// 110*2^7 = 14080 Hz, capped at sampleRate/2.1.
	freq := 110.0 * pow2Approx(float64(cutoff)/127.0*7.0)
	if freq > float64(sampleRate)/2.1 {
		freq = float64(sampleRate) / 2.1
	}
	w := 2.0 * 3.14159265358979 * freq / float64(sampleRate)
	a0 := w / (w + 1.0)
	q := 1.0 + float64(resonance)/127.0*8.0
	return &resonantLowPass{a0: a0, b1: 1.0 - a0, fb: q}
}

func (f *resonantLowPass) Process(x float64) float64 {
	y := f.a0*x + f.b1*f.y1
	f.y1 = y
	return y
}

// pow2Approx is a cheap 2^x used only for the filter's cutoff curve,
// where audible accuracy doesn't need a full math.Pow call site.
func pow2Approx(x float64) float64 {
	// 2^x = 2^i * 2^f with i = int(x) (truncated toward zero) and f = x - i;
	// the f part via a 2-term polynomial is within ~3.5% across [0,1),
	// plenty for a filter cutoff curve.
	i := int(x)
	f := x - float64(i)
	frac := 1.0 + f*(0.6930 + f*0.2416)
	var whole float64
	if i >= 0 {
		whole = float64(int64(1) << uint(i))
	} else {
		whole = 1.0 / float64(int64(1)<<uint(-i))
	}
	return whole * frac
}
