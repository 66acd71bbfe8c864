// play is an interactive terminal front-end for the engine: it streams
// audio through PortAudio, runs the rendered signal through a comb-filter
// reverb, and draws a scrolling pattern view the listener can steer with
// the keyboard. Grounded on the teacher's cmd/modplay AudioPlayer.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/fatih/color"
	"github.com/gordonklaus/portaudio"

	moduleplayer "github.com/araxis-audio/moduleplayer"
	"github.com/araxis-audio/moduleplayer/internal/comb"
)

var (
	flagHz       = flag.Int("hz", 44100, "output sample rate in Hz")
	flagStart    = flag.Int("start", 0, "starting order, clamped to the song's order count")
	flagReverb   = flag.String("reverb", "light", "reverb amount: none, light, medium, silly")
	flagNoUI     = flag.Bool("noui", false, "disable the terminal UI, just play audio")
)

const (
	escape     = "\x1b["
	hideCursor = escape + "?25l"
	showCursor = escape + "?25h"

	scratchBufferSize = 10 * 1024
	audioBufferSize   = 756 / 2
	patternRowsBefore = 4
	patternRowsAfter  = 4
)

var (
	white   = color.New(color.FgWhite).SprintfFunc()
	cyan    = color.New(color.FgCyan).SprintfFunc()
	magenta = color.New(color.FgMagenta).SprintfFunc()
	yellow  = color.New(color.FgYellow).SprintfFunc()
	blue    = color.New(color.FgHiBlue).SprintfFunc()
	green   = color.New(color.FgGreen).SprintfFunc()
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("play: ")
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal("usage: play [flags] module.{mod,s3m,xm,it}")
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	ctx := moduleplayer.NewContext()
	if err := ctx.Load(data); err != nil {
		log.Fatal(err)
	}
	if err := ctx.PlaySong(*flagHz); err != nil {
		log.Fatal(err)
	}
	ctx.SeekToOrder(*flagStart)

	reverb, err := reverbFromFlag(*flagReverb, *flagHz)
	if err != nil {
		log.Fatal(err)
	}

	ap := newAudioPlayer(ctx, reverb, *flagNoUI)
	if err := ap.run(); err != nil {
		log.Fatal(err)
	}
}

// reverbFromFlag builds a comb.Reverber from the -reverb flag, grounded on
// the teacher's cmd/internal/config.ReverbFromFlag. "light" keeps the
// teacher's single feedback echo; "medium" and "silly" step up to the
// full comb+allpass StereoReverb tank.
func reverbFromFlag(name string, sampleRate int) (comb.Reverber, error) {
	switch name {
	case "none":
		return comb.NewPassThrough(10 * 1024), nil
	case "light":
		return comb.NewCombAdd(10*1024, 0.2, 150, sampleRate), nil
	case "medium":
		return comb.NewStereoReverb(4096, 0.5, 0.5, 0.3, sampleRate), nil
	case "silly":
		return comb.NewStereoReverb(8192, 0.95, 0.1, 0.8, sampleRate), nil
	default:
		return nil, fmt.Errorf("unrecognized reverb setting %q", name)
	}
}

// audioPlayer drives the PortAudio stream, keyboard, signal handling, and
// terminal redraw loop around one Context.
type audioPlayer struct {
	ctx     *moduleplayer.Context
	reverb  comb.Reverber
	stream  *portaudio.Stream
	scratch []int16

	uiWriter        io.Writer
	selectedChannel int
	soloChannel     int
	lastState       moduleplayer.PlaybackState

	runCtx         context.Context
	cancelFn       context.CancelFunc
	wg             sync.WaitGroup
	stopOnce       sync.Once
	terminated     bool
	keyboardDoneCh chan struct{}
}

func newAudioPlayer(ctx *moduleplayer.Context, reverb comb.Reverber, noUI bool) *audioPlayer {
	var uiw io.Writer = os.Stdout
	if noUI {
		uiw = io.Discard
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &audioPlayer{
		ctx:            ctx,
		reverb:         reverb,
		scratch:        make([]int16, scratchBufferSize),
		uiWriter:       uiw,
		soloChannel:    -1,
		runCtx:         runCtx,
		cancelFn:       cancel,
		keyboardDoneCh: make(chan struct{}),
	}
}

func (ap *audioPlayer) run() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	if err := ap.setupAudioStream(); err != nil {
		return err
	}
	ap.setupSignalHandler()
	ap.setupKeyboardHandler()

	fmt.Fprint(ap.uiWriter, hideCursor)

loop:
	for {
		select {
		case <-ap.runCtx.Done():
			break loop
		default:
		}

		state := ap.ctx.State()
		if ap.lastState != state {
			ap.renderUI(state)
			ap.lastState = state
		}
	}

	fmt.Fprint(ap.uiWriter, showCursor)

	select {
	case <-ap.keyboardDoneCh:
	case <-time.After(500 * time.Millisecond):
	}

	ap.wg.Wait()
	return nil
}

func (ap *audioPlayer) setupAudioStream() error {
	stream, err := portaudio.OpenDefaultStream(0, 2, float64(*flagHz), audioBufferSize, ap.streamCallback)
	if err != nil {
		return err
	}
	ap.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}
	return nil
}

// streamCallback renders one PortAudio buffer's worth of audio and pushes
// it through the reverb before handing it to the device.
func (ap *audioPlayer) streamCallback(out []int16) {
	sc := ap.scratch[:len(out)]

	if ap.ctx.IsPlaying() {
		ap.ctx.GenerateSamples(sc)
	} else {
		for i := range sc {
			sc[i] = 0
		}
	}

	ap.reverb.InputSamples(sc)
	n := ap.reverb.GetAudio(out)
	if n == 0 {
		ap.ctx.SetPlaying(false)
	}
}

func (ap *audioPlayer) setupSignalHandler() {
	sigch := make(chan os.Signal, 5)
	signal.Notify(sigch, syscall.SIGINT)

	ap.wg.Add(1)
	go func() {
		defer ap.wg.Done()
		select {
		case <-ap.runCtx.Done():
		case <-sigch:
			ap.stop()
		}
	}()
}

func (ap *audioPlayer) setupKeyboardHandler() {
	ap.wg.Add(1)
	go func() {
		defer ap.wg.Done()
		keyboard.Listen(func(key keys.Key) (stop bool, err error) {
			if key.Code == keys.CtrlC || key.Code == keys.Escape {
				ap.stop()
				return true, nil
			}
			ap.handleKeyPress(key)
			return false, nil
		})
		close(ap.keyboardDoneCh)
	}()
}

func (ap *audioPlayer) handleKeyPress(key keys.Key) {
	song := ap.ctx.Song()
	switch key.Code {
	case keys.Left:
		if ap.selectedChannel > 0 {
			ap.selectedChannel--
		}
	case keys.Right:
		if ap.selectedChannel < song.Channels-1 {
			ap.selectedChannel++
		}
	case keys.Space:
		ap.ctx.SetPlaying(!ap.ctx.IsPlaying())
	case keys.RuneKey:
		if len(key.Runes) == 0 {
			return
		}
		switch key.Runes[0] {
		case 'q':
			ap.ctx.SetChannelMuted(ap.selectedChannel, !ap.ctx.ChannelMuted(ap.selectedChannel))
		case 's':
			if ap.soloChannel != ap.selectedChannel {
				ap.soloChannel = ap.selectedChannel
				for ch := 0; ch < song.Channels; ch++ {
					ap.ctx.SetChannelMuted(ch, ch != ap.selectedChannel)
				}
			} else {
				ap.soloChannel = -1
				for ch := 0; ch < song.Channels; ch++ {
					ap.ctx.SetChannelMuted(ch, false)
				}
			}
		}
	}
}

func (ap *audioPlayer) stop() {
	ap.stopOnce.Do(func() {
		ap.ctx.SetPlaying(false)
		ap.cancelFn()
		if ap.stream != nil {
			ap.stream.Stop()
			ap.stream.Close()
		}
		if !ap.terminated {
			portaudio.Terminate()
			ap.terminated = true
		}
		fmt.Fprint(ap.uiWriter, showCursor)
	})
}

func (ap *audioPlayer) renderUI(state moduleplayer.PlaybackState) {
	song := ap.ctx.Song()

	if song.Title != "" {
		fmt.Fprint(ap.uiWriter, song.Title+" ")
	}
	fmt.Fprintf(ap.uiWriter, "%s %3d %s %3d/%3d %s %2d %s %3d\n",
		blue("row"), state.Row,
		blue("ord"), state.Order, len(song.Orders),
		blue("speed"), state.Speed,
		blue("bpm"), state.Tempo)

	fmt.Fprint(ap.uiWriter, "        ")
	maxChannels := min(song.Channels, 8)
	for i := 0; i < maxChannels; i++ {
		const chanHdr = "%2d       "
		if i == ap.selectedChannel {
			fmt.Fprint(ap.uiWriter, green(chanHdr, i+1))
		} else {
			fmt.Fprintf(ap.uiWriter, chanHdr, i+1)
		}
	}
	fmt.Fprintln(ap.uiWriter)

	for i := -patternRowsBefore; i <= patternRowsAfter; i++ {
		ap.renderNoteRow(state.Order, state.Row+i, i == 0, maxChannels)
	}

	fmt.Fprintf(ap.uiWriter, escape+"%dF", patternRowsBefore+patternRowsAfter+1+2)
}

func (ap *audioPlayer) renderNoteRow(order, row int, isCurrent bool, maxChannels int) {
	song := ap.ctx.Song()
	pat := song.PatternAt(order)
	if pat == nil || row < 0 || row >= pat.Rows {
		fmt.Fprintln(ap.uiWriter)
		return
	}

	if isCurrent {
		fmt.Fprint(ap.uiWriter, ">>> ")
	} else {
		fmt.Fprint(ap.uiWriter, "    ")
	}

	for ch := 0; ch < maxChannels && ch < pat.Channels; ch++ {
		cell := pat.Cell(row, ch)
		fmt.Fprint(ap.uiWriter, white("%s", cell.Pitch.String()), " ", cyan("%2d", cell.Sample), " ")
		if cell.Volume != -1 {
			fmt.Fprint(ap.uiWriter, green("%2d", cell.Volume))
		} else {
			fmt.Fprint(ap.uiWriter, green(".."))
		}
		fmt.Fprint(ap.uiWriter, " ", magenta("%02X", cell.Effect), yellow("%02X", cell.Param))
		if ch < maxChannels-1 {
			fmt.Fprint(ap.uiWriter, "|")
		}
	}

	if isCurrent {
		fmt.Fprint(ap.uiWriter, " <<<")
	}
	fmt.Fprintln(ap.uiWriter)
}
