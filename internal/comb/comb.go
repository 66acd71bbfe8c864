package comb

// Reverber is the streaming post-mix effect interface cmd/play's audio
// callback feeds rendered frames through: InputSamples hands over newly
// generated audio, GetAudio drains whatever reverb has produced so far.
type Reverber interface {
	InputSamples(in []int16) int
	GetAudio(out []int16) int
}

var (
	_ Reverber = (*CombAdd)(nil)
	_ Reverber = (*PassThrough)(nil)
	_ Reverber = (*StereoReverb)(nil)
)

// PassThrough implements Reverber with no audio effect at all, for
// running cmd/play with reverb disabled without special-casing the
// streaming callback.
type PassThrough struct {
	audio             []int16
	bufSize           int
	readPos, writePos int
	n                 int
}

// NewPassThrough allocates a PassThrough with the given ring-buffer
// capacity, in sample pairs.
func NewPassThrough(bufferSize int) *PassThrough {
	return &PassThrough{audio: make([]int16, bufferSize*2), bufSize: bufferSize * 2}
}

func (r *PassThrough) InputSamples(in []int16) int {
	free := r.bufSize - r.n
	n := len(in)
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}
	if r.writePos+n > r.bufSize {
		n1 := r.bufSize - r.writePos
		n2 := n - n1
		copy(r.audio[r.writePos:], in[:n1])
		copy(r.audio[:n2], in[n1:n1+n2])
		r.writePos = n2
	} else {
		copy(r.audio[r.writePos:r.writePos+n], in[:n])
		r.writePos += n
	}
	r.n += n
	return n
}

func (r *PassThrough) GetAudio(out []int16) int {
	n := len(out)
	if n > r.n {
		n = r.n
	}
	if n == 0 {
		return 0
	}
	if r.readPos+n > r.bufSize {
		n1 := r.bufSize - r.readPos
		n2 := n - n1
		copy(out[:n1], r.audio[r.readPos:])
		copy(out[n1:n1+n2], r.audio[:n2])
		r.readPos = n2
	} else {
		copy(out, r.audio[r.readPos:r.readPos+n])
		r.readPos += n
	}
	r.n -= n
	return n
}

// Comb models a simple Comb filter reverb module. At construction time it takes
// a block of sample data and applies reverb to it. It cannot be fed any more
// sample data after this.
type Comb struct {
	delayOffset int
	readPos     int
	audio       []int16
}

func NewComb(in []int16, decay float32, delayMs, sampleRate int) *Comb {
	c := &Comb{
		delayOffset: (delayMs * sampleRate) / 1000,
		audio:       make([]int16, len(in)),
	}

	copy(c.audio, in)
	for i := 0; i < len(in)/2-c.delayOffset; i++ {
		c.audio[(i+c.delayOffset)*2+0] += int16(float32(c.audio[i*2+0]) * decay)
		c.audio[(i+c.delayOffset)*2+1] += int16(float32(c.audio[i*2+1]) * decay)
	}

	return c
}

func (c *Comb) GetAudio(out []int16) int {
	n := len(out)
	if c.readPos+n > len(c.audio) {
		n = len(c.audio) - c.readPos
	}
	copy(out, c.audio[c.readPos:c.readPos+n])
	c.readPos += n
	return n
}

// CombAdd is a Comb filter can be fed audio data incrementally
// It does not discard used samples and has no upper bound on memory used
type CombAdd struct {
	Comb
	readPos  int
	writePos int
	decay    float32
}

// initialSize is in sample pairs
func NewCombAdd(initialSize int, decay float32, delayMs, sampleRate int) *CombAdd {
	c := &CombAdd{
		Comb: Comb{
			delayOffset: (delayMs * sampleRate) / 1000,
			audio:       make([]int16, 0, initialSize*2),
		},
		decay: decay,
	}

	return c
}

// InputSamples feeds the CombAdd filter with new sample data. Once enough
// samples have been accumulated the filter will start applying reverb to audio
// data. The exact number of samples is determined by delay and sample rate.
// InputSamples returns the number of samples required before reverb can be
// applied. The functions takes a copy of the provided audio data.
func (c *CombAdd) InputSamples(in []int16) int {
	c.audio = append(c.audio, in...)
	if len(c.audio) > c.delayOffset*2 {
		ns := len(c.audio) - (c.delayOffset*2 + c.writePos)
		for i := 0; i < ns; i++ {
			c.audio[i+c.delayOffset*2+c.writePos] += int16(float32(c.audio[i+c.writePos]) * c.decay)
		}
		c.writePos += ns
	}
	rem := c.delayOffset*2 - len(c.audio)
	if rem < 0 {
		rem = 0
	}
	return rem
}

// GetAudio puts processed audio data into the out slice. It returns the number
// of samples put into out.
func (c *CombAdd) GetAudio(out []int16) int {
	wanted := len(out)
	have := len(c.audio) - c.readPos
	if wanted > have {
		wanted = have
	}
	if wanted > 0 {
		copy(out, c.audio[c.readPos:c.readPos+wanted])
		c.readPos += wanted
	}
	return wanted
}

// combFilter is one Schroeder feedback comb filter with a one-pole
// lowpass in the feedback path (the "damping" control), the building
// block of a Freeverb-style tank.
type combFilter struct {
	buf         []int32
	bufIdx      int
	feedback    float32
	damp1       float32
	damp2       float32
	filterStore float32
}

func newCombFilter(delay int, decay, damping float32) *combFilter {
	return &combFilter{
		buf:      make([]int32, delay),
		feedback: decay,
		damp1:    damping,
		damp2:    1 - damping,
	}
}

func (c *combFilter) process(input int32) int32 {
	output := c.buf[c.bufIdx]
	c.filterStore = float32(output)*c.damp2 + c.filterStore*c.damp1
	c.buf[c.bufIdx] = input + int32(c.filterStore*c.feedback)
	c.bufIdx++
	if c.bufIdx >= len(c.buf) {
		c.bufIdx = 0
	}
	return output
}

// allpass is a Schroeder allpass filter, used in series after the comb
// bank to diffuse the comb filters' periodic ringing into a smoother
// tail.
type allpass struct {
	buf      []int32
	bufIdx   int
	feedback float32
}

func newAllpass(delay int) *allpass {
	return &allpass{buf: make([]int32, delay), feedback: 0.5}
}

func (a *allpass) process(input int32) int32 {
	bufout := a.buf[a.bufIdx]
	output := -input + bufout
	a.buf[a.bufIdx] = input + int32(float32(bufout)*a.feedback)
	a.bufIdx++
	if a.bufIdx >= len(a.buf) {
		a.bufIdx = 0
	}
	return output
}

// Freeverb's classic tuning constants, in samples at 44100Hz. StereoReverb
// scales them to the actual output rate and offsets the right channel by
// stereoSpread so the two channels' combs don't ring in lockstep.
var (
	combTuningL    = [8]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allpassTuningL = [4]int{556, 441, 341, 225}
)

const (
	stereoSpread = 23
	fixedGain    = float32(0.015)
)

// StereoReverb is a small Freeverb-style reverb tank: eight parallel
// damped comb filters feeding four series allpass filters, run
// independently per channel, blended against the dry signal by mix. It
// satisfies Reverber through its own ring buffer so a producer (the
// mixer, rendering whole ticks) and a consumer (a fixed-size PortAudio
// callback) can run at different granularities.
type StereoReverb struct {
	combsL, combsR     [8]*combFilter
	allpassL, allpassR [4]*allpass
	mix                float32

	audio             []int16
	bufSize           int
	readPos, writePos int
	n                 int
}

// NewStereoReverb builds a StereoReverb. bufferSize is in sample pairs;
// roomSize and damping are both in [0,1] and shape the comb feedback and
// its lowpass damping; mix in [0,1] blends dry against wet.
func NewStereoReverb(bufferSize int, roomSize, damping, mix float32, sampleRate int) *StereoReverb {
	scale := float32(sampleRate) / 44100
	feedback := roomSize*0.28 + 0.7

	sr := &StereoReverb{
		mix:     mix,
		audio:   make([]int16, bufferSize*2),
		bufSize: bufferSize * 2,
	}
	for i := range sr.combsL {
		sr.combsL[i] = newCombFilter(int(float32(combTuningL[i])*scale), feedback, damping)
		sr.combsR[i] = newCombFilter(int(float32(combTuningL[i]+stereoSpread)*scale), feedback, damping)
	}
	for i := range sr.allpassL {
		sr.allpassL[i] = newAllpass(int(float32(allpassTuningL[i]) * scale))
		sr.allpassR[i] = newAllpass(int(float32(allpassTuningL[i]+stereoSpread) * scale))
	}
	return sr
}

// InputSamples runs interleaved stereo PCM through the reverb tank and
// appends the blended result to the internal ring buffer, up to its free
// capacity. It returns how many of in's samples were consumed; a
// trailing odd sample (a partial stereo pair) is never consumed.
func (sr *StereoReverb) InputSamples(in []int16) int {
	free := sr.bufSize - sr.n
	n := len(in)
	if n > free {
		n = free
	}
	n -= n % 2
	if n == 0 {
		return 0
	}

	for i := 0; i < n; i += 2 {
		left := int32(in[i])
		right := int32(in[i+1])

		var outL, outR int32
		for c := range sr.combsL {
			outL += sr.combsL[c].process(left)
			outR += sr.combsR[c].process(right)
		}
		for a := range sr.allpassL {
			outL = sr.allpassL[a].process(outL)
			outR = sr.allpassR[a].process(outR)
		}

		wetL := float32(outL) * fixedGain
		wetR := float32(outR) * fixedGain
		mixedL := float32(left)*(1-sr.mix) + wetL*sr.mix
		mixedR := float32(right)*(1-sr.mix) + wetR*sr.mix

		sr.pushSample(clampInt16(mixedL))
		sr.pushSample(clampInt16(mixedR))
	}

	return n
}

func (sr *StereoReverb) pushSample(v int16) {
	sr.audio[sr.writePos] = v
	sr.writePos++
	if sr.writePos >= sr.bufSize {
		sr.writePos = 0
	}
	sr.n++
}

// GetAudio drains up to len(out) processed samples into out, returning
// how many were written.
func (sr *StereoReverb) GetAudio(out []int16) int {
	n := len(out)
	if n > sr.n {
		n = sr.n
	}
	if n == 0 {
		return 0
	}
	if sr.readPos+n > sr.bufSize {
		n1 := sr.bufSize - sr.readPos
		n2 := n - n1
		copy(out[:n1], sr.audio[sr.readPos:])
		copy(out[n1:n1+n2], sr.audio[:n2])
		sr.readPos = n2
	} else {
		copy(out, sr.audio[sr.readPos:sr.readPos+n])
		sr.readPos += n
	}
	sr.n -= n
	return n
}

func clampInt16(v float32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
