// render writes a tracker module straight to a 16-bit stereo WAV file,
// with no audio device and no terminal UI (grounded on the teacher's
// cmd/modwav).
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	moduleplayer "github.com/araxis-audio/moduleplayer"
	"github.com/araxis-audio/moduleplayer/wav"
)

const outputHz = 44100
const chunkFrames = 4096

func main() {
	log.SetFlags(0)
	log.SetPrefix("render: ")

	out := flag.String("o", "", "output WAV path")
	seconds := flag.Int("seconds", 0, "stop after N seconds (0 = play to song end)")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("usage: render -o out.wav module.it")
	}
	if *out == "" {
		log.Fatal("missing -o")
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	ctx := moduleplayer.NewContext()
	if err := ctx.Load(data); err != nil {
		log.Fatal(err)
	}
	if err := ctx.PlaySong(outputHz); err != nil {
		log.Fatal(err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	w, err := wav.NewWriter(f, outputHz)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if _, err := w.Finish(); err != nil {
			log.Printf("finish: %v", err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT)
	stop := false
	go func() {
		<-sigc
		stop = true
	}()

	maxFrames := 0
	if *seconds > 0 {
		maxFrames = *seconds * outputHz
	}

	buf := make([]int16, chunkFrames*2)
	rendered := 0
	for !stop {
		n := ctx.GenerateSamples(buf)
		if n == 0 {
			break
		}
		if err := w.WriteFrames(buf[:n*2]); err != nil {
			log.Fatal(err)
		}
		rendered += n
		if !ctx.IsPlaying() {
			break
		}
		if maxFrames > 0 && rendered >= maxFrames {
			break
		}
	}

	log.Printf("rendered %d frames to %s", rendered, *out)
}
