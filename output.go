package moduleplayer

// clampSample saturates a 32-bit accumulator value to the 16-bit signed
// range, matching period Sound Blaster 16 output rather than wrapping
// (spec.md §4.7).
func clampSample(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// finalizeInt16 converts the stereo accumulator buffers into interleaved
// 16-bit PCM frames, applying the song's global volume and the engine's
// fixed mixing headroom shift.
func finalizeInt16(accL, accR []int32, globalVolume int, out []int16) {
	n := len(accL)
	for i := 0; i < n; i++ {
		l := accL[i] * int32(globalVolume) / 128
		r := accR[i] * int32(globalVolume) / 128
		out[i*2] = clampSample(l >> 2)
		out[i*2+1] = clampSample(r >> 2)
	}
}

// finalizeFloat32 is finalizeInt16's float counterpart, producing
// interleaved samples in [-1, 1] for callers (e.g. a future non-PCM
// sink) that want headroom instead of hard clamping.
func finalizeFloat32(accL, accR []int32, globalVolume int, out []float32) {
	n := len(accL)
	const scale = 1.0 / 32768.0
	for i := 0; i < n; i++ {
		l := float32(accL[i]) * float32(globalVolume) / 128 / 4
		r := float32(accR[i]) * float32(globalVolume) / 128 / 4
		out[i*2] = l * scale
		out[i*2+1] = r * scale
	}
}
