package moduleplayer

// itFreqFromC4Speed converts an IT/S3M note into a playback frequency, scaled
// off the sample's own recorded C4Speed rather than a fixed Amiga clock
// (spec.md §4.4.3 — IT samples carry their own middle-C rate).
func itFreqFromC4Speed(note playerNote, c4Speed int) int {
	if c4Speed <= 0 {
		c4Speed = 8363
	}
	semis := float64(int(note) - 60) // note 60 == C-5 in our linear scheme
	return int(float64(c4Speed) * pow2f(semis/12.0))
}

// mixTickIT renders one tick's worth of frames for the IT/S3M VM. It
// selects ping-pong looping (including a ping-pong sustain loop after
// note-off) and, for channels with the Surround flag, phase-inverted
// "surround" panning; the loop stepping itself happens in mixVoice.
func mixTickIT(voices []voiceState, song *Song, mutedChannels []bool, accL, accR []int32, n int, surroundChannels []bool, sampleRate int) {
	if sampleRate <= 0 {
		return
	}
	for i := range voices {
		v := &voices[i]
		if !v.Active {
			continue
		}
		if v.HostChannel >= 0 && v.HostChannel < len(mutedChannels) && mutedChannels[v.HostChannel] {
			continue
		}
		if v.Sample <= 0 || v.Sample > len(song.Samples) {
			continue
		}
		smp := &song.Samples[v.Sample-1]
		if len(smp.Data) == 0 {
			continue
		}

		flags := mixKernelFlags{
			Interpolate: true,
			Ramp:        v.RampRemaining > 0,
			PingPong:    smp.IsPingPong || (v.NoteOff && smp.SustainPingPong && smp.HasSustainLoop),
			Stereo:      smp.IsStereo,
		}

		// 16.16 fixed-point source samples consumed per output frame,
		// scaled by the engine's output rate (see mixTickXM).
		step := (int64(v.Freq) << mixFracBits) / int64(sampleRate)
		if step <= 0 {
			continue
		}

		panL, panR := panToGains(v.Pan, v.Volume, 128)
		if v.HostChannel >= 0 && v.HostChannel < len(surroundChannels) && surroundChannels[v.HostChannel] {
			// Surround: invert one channel's phase instead of panning,
			// matching IT's "Ixx=100 pan" meaning.
			panR = -panR
		}
		if flags.Ramp {
			startRamp(v, panL, panR)
		}

		mixVoice(v, smp, flags, step, accL, accR, n, panL, panR)

		if v.SamplePos >= int64(smp.Length) && !smp.IsLooped {
			v.Active = false
		}
	}
}
