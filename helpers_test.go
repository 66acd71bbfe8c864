package moduleplayer

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"

	clone "github.com/huandu/go-clone/generic"
)

const testSampleLength = 1000

// testSong is a minimal base fixture shared across tests. Each test that
// wants a private copy clones it with go-clone rather than mutating the
// shared value directly, matching the teacher's own helpers_test.go
// (clone.Clone(testSong)) so tests can't alias each other's slices.
var testSong = Song{
	Title:        "testsong",
	Type:         SongTypeS3M,
	Channels:     2,
	GlobalVolume: 128,
	MixingVolume: 48,
	InitialSpeed: 2,
	InitialTempo: 125,
	Orders:       []byte{0},
	Samples: []Sample{
		{
			Name:    "testins1",
			Volume:  60,
			C4Speed: 8363,
			Length:  testSampleLength,
			Data:    make([]int16, testSampleLength),
		},
		{
			Name:    "testins2",
			Volume:  55,
			C4Speed: 8363,
			Length:  testSampleLength,
			Data:    make([]int16, testSampleLength),
		},
	},
}

// newTestSong returns a private deep copy of testSong with the given
// pattern installed, synthesizing the Instruments layer that a real S3M
// loader would (synthesizeInstrumentsFromSamples), and sized to nChannels.
func newTestSong(pat *Pattern, nChannels int) *Song {
	s := clone.Clone(testSong)
	s.Channels = nChannels
	s.Patterns = []*Pattern{pat}
	s.Instruments = synthesizeInstrumentsFromSamples(s.Samples)
	for i := 0; i < nChannels && i < len(s.ChannelSettings); i++ {
		s.ChannelSettings[i] = ChannelSetting{Pan: 32, Volume: 64}
	}
	return &s
}

// newTestContext builds a Context with newTestSong's song installed and
// playback started, ready to step tick by tick.
func newTestContext(t *testing.T, pat *Pattern, nChannels int) *Context {
	t.Helper()
	ctx := NewContext()
	ctx.installSong(newTestSong(pat, nChannels), FormatITS3M)
	if err := ctx.PlaySong(44100); err != nil {
		t.Fatalf("PlaySong: %v", err)
	}
	return ctx
}

// buildPattern parses a grid of cell specs into a Pattern. Each cell is a
// space-separated string "NOTE SAMPLE VOLUME EFFECT", any of which may be
// omitted from the right; an empty string is a fully blank cell. NOTE is
// "C-4"-style, "===" for key-off, or "..." for none. EFFECT is an S3M/IT
// effect letter (A=1) followed by two hex digits of parameter, e.g. "A08"
// is effect A (set speed) param 0x08.
func buildPattern(rows [][]string) *Pattern {
	nChannels := len(rows[0])
	p := NewPattern(len(rows), nChannels)
	for r, row := range rows {
		for c, spec := range row {
			cell := p.Cell(r, c)
			if spec == "" {
				continue
			}
			fields := strings.Fields(spec)
			if len(fields) > 0 {
				cell.Pitch = decodeTestNote(fields[0])
			}
			if len(fields) > 1 {
				cell.Sample = decodeTestInt(fields[1], 0)
			}
			if len(fields) > 2 {
				cell.Volume = decodeTestInt(fields[2], noNoteVolume)
			} else {
				cell.Volume = noNoteVolume
			}
			if len(fields) > 3 {
				cell.Effect, cell.Param = decodeTestEffect(fields[3])
			}
		}
	}
	return p
}

var testNoteOrder = []string{"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-"}

func decodeTestNote(s string) playerNote {
	switch s {
	case "...":
		return noNote
	case "===":
		return noteKeyOff
	}
	idx := slices.Index(testNoteOrder, s[0:2])
	if idx == -1 {
		panic(fmt.Sprintf("invalid test note %q", s))
	}
	octave := int(s[2] - '0')
	return playerNote(octave*12 + idx)
}

func decodeTestInt(s string, empty int) int {
	if s == "" || s == ".." {
		return empty
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		panic(err)
	}
	return v
}

// decodeTestEffect reads a letter (A=1..Z=26) plus two hex digits and
// translates it through the shared S3M/IT effect table, the same
// translation s3mfile.go/itfile.go apply at load time.
func decodeTestEffect(s string) (byte, byte) {
	if s == "" || s == "..." {
		return effectNone, 0
	}
	letter := s[0] - 'A' + 1
	param, err := strconv.ParseUint(s[1:3], 16, 8)
	if err != nil {
		panic(err)
	}
	return s3mEffectLetter(letter, byte(param))
}
