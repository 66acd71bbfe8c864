package moduleplayer

// xmAmigaPeriodToFreq converts an Amiga-style period into a playback
// frequency using the classic non-linear (period-halves-per-octave) law,
// used when Song.LinearSlides is false (spec.md §4.4.2).
func xmAmigaPeriodToFreq(period int, c4Speed int) int {
	if period <= 0 {
		return 0
	}
	const amigaClock = 7159090.5 * 2
	return int(amigaClock / float64(period*2))
}

// xmLinearPeriodToFreq converts a linear period (in 1/64-semitone units,
// 768 per octave) into a playback frequency, used when
// Song.LinearSlides is true.
func xmLinearPeriodToFreq(period int) int {
	const refPeriod = 3840 // period of C-5 in the linear scheme (7680 - 60*64, see noteToFreqXM)
	exp := float64(refPeriod-period) / 768.0
	return int(8363.0 * pow2f(exp))
}

func pow2f(x float64) float64 {
	i := int(x)
	f := x - float64(i)
	var whole float64
	if i >= 0 {
		whole = float64(int64(1) << uint(i))
	} else {
		whole = 1.0 / float64(int64(1)<<uint(-i))
	}
	return whole * (1.0 + f*(0.6930+f*0.2416))
}

// mixTickXM renders exactly one tick's worth of frames for the XM/MOD VM
// into the accumulator, one voice at a time. It is the "kernel selection"
// point spec.md §4.6 describes: each active voice picks Stereo/
// Interpolate/Ramp/PingPong flags off its own sample and ramp state, and
// mixVoice does the rest.
func mixTickXM(voices []voiceState, song *Song, mutedChannels []bool, accL, accR []int32, n int, sampleRate int) {
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
			PingPong:    smp.IsPingPong,
			Stereo:      smp.IsStereo,
		}

		// 16.16 fixed-point source samples consumed per output frame:
		// v.Freq is the voice's playback rate in Hz, so it must be scaled
		// by the engine's output rate rather than used as the step itself.
		step := (int64(v.Freq) << mixFracBits) / int64(sampleRate)
		if step <= 0 {
			continue
		}

		panL, panR := panToGains(v.Pan, v.Volume, 128)
		if flags.Ramp {
			startRamp(v, panL, panR)
		}

		mixVoice(v, smp, flags, step, accL, accR, n, panL, panR)

		if v.SamplePos >= int64(smp.Length) && !smp.IsLooped {
			v.Active = false
		}
	}
}
