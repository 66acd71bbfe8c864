package moduleplayer

// processRowIT handles the "new row" half of one channel's cell for the
// IT/S3M VM: instrument/sample resolution through the note-map, NNA
// allocation when a new note arrives on a channel already sounding, the
// volume column (which overlaps with several effect letters), and
// one-shot effect initialization (spec.md §4.4.3).
func (c *Context) processRowIT(chIdx int, cell *note) {
	ch := &c.channels[chIdx]
	if cell.Effect != effectNone {
		ch.LastEffect, ch.LastParam = cell.Effect, cell.Param
	}

	if cell.Sample > 0 {
		ch.Instrument = cell.Sample
	}

	switch cell.Pitch {
	case noteKeyOff:
		c.keyOffChannel(chIdx, ch)
	case noNote:
		// no note in this cell; volume/effect can still apply to the
		// currently sounding voice.
	default:
		ch.Note = cell.Pitch
		if cell.Effect != effectPortaToNote && !(cell.VolCmd == volCmdPortaToNote) {
			c.triggerNoteIT(chIdx, ch, cell)
		} else if ch.ActiveVoice >= 0 {
			target := c.resolveInstrumentNoteIT(ch, cell.Pitch)
			c.voices[ch.ActiveVoice].Pitch = target
		}
	}

	if cell.VolCmd == volCmdVolume {
		ch.Volume = int(cell.VolParam)
		c.applyVolumeIT(ch)
	} else if cell.VolCmd == volCmdPanning {
		ch.Pan = int(cell.VolParam)
		c.applyPanIT(ch)
	}

	c.initEffectIT(chIdx, ch, cell.Effect, cell.Param)
}

func (c *Context) keyOffChannel(chIdx int, ch *hostChannel) {
	if ch.ActiveVoice < 0 {
		return
	}
	v := &c.voices[ch.ActiveVoice]
	v.NoteOff = true
	if v.Instrument <= 0 || v.Instrument > len(c.song.Instruments) {
		v.Active = false
		return
	}
	ins := &c.song.Instruments[v.Instrument-1]
	if !ins.VolumeEnvelope.Enabled || !ins.VolumeEnvelope.Loop {
		if ins.FadeOut == 0 {
			v.Active = false
		} else {
			v.Fading = true
			if v.FadeVol == 0 {
				v.FadeVol = 1024
			}
		}
	}
}

// resolveInstrumentNoteIT applies an instrument's note-map remap, if the
// song uses instruments; otherwise the note passes through unchanged.
func (c *Context) resolveInstrumentNoteIT(ch *hostChannel, n playerNote) playerNote {
	if !c.song.UsesInstruments() || ch.Instrument <= 0 || ch.Instrument > len(c.song.Instruments) {
		return n
	}
	ins := &c.song.Instruments[ch.Instrument-1]
	if int(n) < 0 || int(n) >= len(ins.Notemap) {
		return n
	}
	return ins.Notemap[n].Note
}

func (c *Context) resolveSampleIT(ch *hostChannel, n playerNote) int {
	if !c.song.UsesInstruments() {
		return ch.Instrument
	}
	if ch.Instrument <= 0 || ch.Instrument > len(c.song.Instruments) {
		return 0
	}
	ins := &c.song.Instruments[ch.Instrument-1]
	if int(n) < 0 || int(n) >= len(ins.Notemap) {
		return 0
	}
	return ins.Notemap[n].Sample
}

// triggerNoteIT runs the NNA allocation algorithm (spec.md §3.5): the
// channel's currently active voice is disposed of per the instrument's
// NewNoteAction (cut, left to continue, released, or faded) rather than
// always being cut outright, and duplicate-check settings can also stop
// an unrelated voice on the same instrument/sample/note elsewhere in the
// voice pool.
func (c *Context) triggerNoteIT(chIdx int, ch *hostChannel, cell *note) {
	sampleIdx := c.resolveSampleIT(ch, ch.Note)
	mappedNote := c.resolveInstrumentNoteIT(ch, ch.Note)

	var ins *Instrument
	if ch.Instrument > 0 && ch.Instrument <= len(c.song.Instruments) {
		ins = &c.song.Instruments[ch.Instrument-1]
	}

	if ch.ActiveVoice >= 0 {
		c.disposeVoiceByNNA(ch.ActiveVoice, ins)
	}
	c.applyDuplicateCheck(chIdx, ch.Instrument, sampleIdx, mappedNote, ins)

	idx := c.allocateVoice(chIdx)
	v := &c.voices[idx]
	*v = newVoiceState()
	v.Active = true
	v.HostChannel = chIdx
	v.Instrument = ch.Instrument
	v.Sample = sampleIdx
	v.Note = ch.Note
	v.Pitch = mappedNote

	vol, pan := 64, 32
	if sampleIdx > 0 && sampleIdx <= len(c.song.Samples) {
		smp := &c.song.Samples[sampleIdx-1]
		vol = smp.Volume
		if smp.PanningSet {
			pan = smp.Panning
		}
		v.Freq = itFreqFromC4Speed(mappedNote, smp.C4Speed)
	}
	if ins != nil {
		if ins.DefaultPanSet {
			pan = ins.DefaultPan
		}
		if ins.RandomVolume > 0 {
			vol += (c.rng.NextRange(ins.RandomVolume*2+1) - ins.RandomVolume) * vol / 100
		}
	}
	v.Volume = clampVol64(vol)
	v.Pan = clampPan64(pan)
	ch.ActiveVoice = idx
	ch.Volume = v.Volume
	ch.Pan = v.Pan
}

// disposeVoiceByNNA decides what happens to a channel's previous voice
// when a new note takes over that channel, per the instrument's
// NewNoteAction. NNAContinue detaches the voice from its host channel so
// it keeps playing/ringing out independently; the others stop or mark it
// releasing.
func (c *Context) disposeVoiceByNNA(voiceIdx int, ins *Instrument) {
	v := &c.voices[voiceIdx]
	nna := NNANoteCut
	if ins != nil {
		nna = ins.NNA
	}
	switch nna {
	case NNANoteCut:
		v.Active = false
	case NNAContinue:
		v.HostChannel = -1
	case NNANoteOff:
		v.NoteOff = true
		v.HostChannel = -1
	case NNAFade:
		v.Fading = true
		if v.FadeVol == 0 {
			v.FadeVol = 1024
		}
		v.HostChannel = -1
	}
}

// applyDuplicateCheck stops any other voice sharing the new note's
// duplicate-check key, per the NEW instrument's DCT/DCA (note, sample, or
// instrument identity), independent of which host channel it's on.
func (c *Context) applyDuplicateCheck(chIdx, instrument, sample int, n playerNote, ins *Instrument) {
	if ins == nil || ins.DCT == DCTOff {
		return
	}
	for i := range c.voices {
		v := &c.voices[i]
		if !v.Active || v.HostChannel == chIdx {
			continue
		}
		match := false
		switch ins.DCT {
		case DCTNote:
			match = v.Instrument == instrument && v.Pitch == n
		case DCTSample:
			match = v.Sample == sample
		case DCTInstrument:
			match = v.Instrument == instrument
		}
		if !match {
			continue
		}
		switch ins.DCA {
		case DCACut:
			v.Active = false
		case DCANoteOff:
			v.NoteOff = true
		case DCAFade:
			v.Fading = true
			if v.FadeVol == 0 {
				v.FadeVol = 1024
			}
		}
	}
}

func clampVol64(v int) int {
	if v < 0 {
		return 0
	}
	if v > 64 {
		return 64
	}
	return v
}

func clampPan64(p int) int {
	if p < 0 {
		return 0
	}
	if p > 64 {
		return 64
	}
	return p
}

func (c *Context) applyVolumeIT(ch *hostChannel) {
	if ch.ActiveVoice < 0 {
		return
	}
	v := &c.voices[ch.ActiveVoice]
	v.Volume = clampVol64(ch.Volume)
	panL, panR := panToGains(v.Pan, v.Volume, 128)
	startRamp(v, panL, panR)
}

func (c *Context) applyPanIT(ch *hostChannel) {
	if ch.ActiveVoice < 0 {
		return
	}
	v := &c.voices[ch.ActiveVoice]
	v.Pan = clampPan64(ch.Pan)
	panL, panR := panToGains(v.Pan, v.Volume, 128)
	startRamp(v, panL, panR)
}

func (c *Context) initEffectIT(chIdx int, ch *hostChannel, effect, param byte) {
	switch effect {
	case effectSetSpeed:
		c.setSpeed(int(param))
	case effectJumpToPattern:
		c.breakToOrder = int(param)
		c.orderJump = true
	case effectPatternBrk:
		c.breakToRow = int(param)
		c.patternBreak = true
	case effectVolumeSlide:
		if param != 0 {
			ch.VolSlideRate = int(param)
		}
	case effectPortaDown:
		if param != 0 {
			ch.PortaSpeed = int(param)
		}
	case effectPortaUp:
		if param != 0 {
			ch.PortaSpeed = int(param)
		}
	case effectPortaToNote:
		if param != 0 {
			ch.PortaSpeed = int(param) * 4
		}
		if ch.ActiveVoice >= 0 {
			target := c.resolveInstrumentNoteIT(ch, ch.Note)
			if sampleIdx := c.resolveSampleIT(ch, ch.Note); sampleIdx > 0 && sampleIdx <= len(c.song.Samples) {
				ch.PortaTarget = itFreqFromC4Speed(target, c.song.Samples[sampleIdx-1].C4Speed)
			}
		}
	case effectVibrato:
		if param>>4 != 0 {
			ch.VibratoSpeed = int(param >> 4)
		}
		if param&0xF != 0 {
			ch.VibratoDepth = int(param & 0xF)
		}
	case effectITSetPanningVal:
		ch.Pan = int(param) * 64 / 255
		c.applyPanIT(ch)
	case effectITGlobalVolume:
		if param <= 128 {
			c.globalVolume = int(param)
		}
	case effectITSetMIDIMacro:
		c.mm.ApplyZxx(param)
	case effectITPanningSlide:
		if param != 0 {
			ch.PanSlideRate = int(param)
		}
	case effectITRetrigger:
		ch.RetrigTicks = int(param & 0xF)
		ch.RetrigVolType = int(param >> 4)
	case effectITPatternLoop:
		c.handlePatternLoopIT(chIdx, ch, int(param))
	}
}

func (c *Context) handlePatternLoopIT(chIdx int, ch *hostChannel, count int) {
	if count == 0 {
		ch.PatternLoopRow = c.row
		return
	}
	if ch.PatternLoopCount == 0 {
		ch.PatternLoopCount = count
	} else {
		ch.PatternLoopCount--
	}
	if ch.PatternLoopCount > 0 {
		c.breakToRow = ch.PatternLoopRow
		c.patternBreak = true
	} else {
		ch.PatternLoopCount = 0
	}
}

// processTickIT runs continuous per-tick effects and the NNA envelope/
// fade carry for every voice, including ones that have been detached
// from their host channel by NNAContinue/NNAFade and are only present in
// the voice pool now (spec.md §4.4.3).
func (c *Context) processTickIT(chIdx int) {
	ch := &c.channels[chIdx]
	if ch.ActiveVoice >= 0 {
		v := &c.voices[ch.ActiveVoice]
		switch ch.LastEffect {
		case effectPortaUp:
			v.Freq += v.Freq * ch.PortaSpeed / 1712
		case effectPortaDown:
			v.Freq -= v.Freq * ch.PortaSpeed / 1712
			if v.Freq < 1 {
				v.Freq = 1
			}
		case effectPortaToNote:
			c.stepTonePortaIT(ch, v)
		case effectVolumeSlide:
			c.applyVolSlideIT(ch, v)
		case effectITPanningSlide:
			c.applyPanSlideIT(ch, v)
		case effectVibrato:
			c.applyVibratoIT(ch, v)
		case effectITRetrigger:
			c.applyRetriggerIT(chIdx, ch, v)
		}
	}

	// applyEnvelopesAndFade walks the whole voice pool, so run it on one
	// channel's pass only to step each voice once per tick.
	if chIdx == 0 {
		c.applyEnvelopesAndFade(chIdx)
	}
}

func (c *Context) stepTonePortaIT(ch *hostChannel, v *voiceState) {
	if v.Freq < ch.PortaTarget {
		v.Freq += ch.PortaSpeed * 4
		if v.Freq > ch.PortaTarget {
			v.Freq = ch.PortaTarget
		}
	} else if v.Freq > ch.PortaTarget {
		v.Freq -= ch.PortaSpeed * 4
		if v.Freq < ch.PortaTarget {
			v.Freq = ch.PortaTarget
		}
	}
}

func (c *Context) applyVolSlideIT(ch *hostChannel, v *voiceState) {
	up, down := ch.VolSlideRate>>4, ch.VolSlideRate&0xF
	if up > 0 {
		v.Volume += up
	} else {
		v.Volume -= down
	}
	v.Volume = clampVol64(v.Volume)
}

func (c *Context) applyPanSlideIT(ch *hostChannel, v *voiceState) {
	left, right := ch.PanSlideRate>>4, ch.PanSlideRate&0xF
	if right > 0 {
		v.Pan += right
	} else {
		v.Pan -= left
	}
	v.Pan = clampPan64(v.Pan)
}

func (c *Context) applyVibratoIT(ch *hostChannel, v *voiceState) {
	ch.VibratoPos = (ch.VibratoPos + ch.VibratoSpeed*4) & 255
	delta := sineTable64[(ch.VibratoPos/4)&63] * ch.VibratoDepth / 32
	v.Freq += v.Freq * delta / 1712
}

func (c *Context) applyRetriggerIT(chIdx int, ch *hostChannel, v *voiceState) {
	if ch.RetrigTicks <= 0 {
		return
	}
	ch.RetrigCount++
	if ch.RetrigCount < ch.RetrigTicks {
		return
	}
	ch.RetrigCount = 0
	v.SamplePos = 0
	v.SamplePosFrac = 0
	v.Forward = true
}

// applyEnvelopesAndFade steps every active voice's volume/panning/pitch
// envelopes by one tick and advances fade-out amplitude for voices marked
// Fading (from NNAFade or an expired sustain loop), deactivating a voice
// once it's fully silent.
func (c *Context) applyEnvelopesAndFade(chIdx int) {
	for i := range c.voices {
		v := &c.voices[i]
		if !v.Active || v.Instrument <= 0 || v.Instrument > len(c.song.Instruments) {
			continue
		}
		ins := &c.song.Instruments[v.Instrument-1]

		stepEnvelope(&ins.VolumeEnvelope, &v.VolEnvTick, &v.VolEnvDone, v.NoteOff)
		// §9 Open Question: the original confuses ENV_SUSTAIN with
		// ENV_ENABLED when deciding whether to also gate the panning
		// envelope's node write on note-off; retained as-is rather than
		// guessing at a "fixed" semantics (documented in DESIGN.md).
		if ins.VolumeEnvelope.Sustain {
			stepEnvelope(&ins.PanningEnvelope, &v.PanEnvTick, &v.PanEnvDone, v.NoteOff)
		}
		stepEnvelope(&ins.PitchEnvelope, &v.PitchEnvTick, &v.PitchEnvDone, v.NoteOff)

		if v.Fading {
			v.FadeVol -= ins.FadeOut
			if v.FadeVol <= 0 {
				v.FadeVol = 0
				v.Active = false
			}
		}
	}
}

// stepEnvelope advances one envelope's tick cursor, handling its loop and
// sustain ranges; sustain only holds while noteOff is false.
func stepEnvelope(env *Envelope, tick *int, done *bool, noteOff bool) {
	if !env.Enabled || len(env.Nodes) == 0 || *done {
		return
	}
	*tick++
	last := env.Nodes[len(env.Nodes)-1].Tick
	if env.Sustain && !noteOff && *tick > env.Nodes[clampIdx(env.SustainEnd, len(env.Nodes))].Tick {
		*tick = env.Nodes[clampIdx(env.SustainStart, len(env.Nodes))].Tick
		return
	}
	if env.Loop && *tick > env.Nodes[clampIdx(env.LoopEnd, len(env.Nodes))].Tick {
		*tick = env.Nodes[clampIdx(env.LoopStart, len(env.Nodes))].Tick
		return
	}
	if *tick > last {
		*tick = last
		*done = true
	}
}

func clampIdx(i, n int) int {
	if n == 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
