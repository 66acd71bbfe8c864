// moddump prints a loaded song's structure (title, samples, instruments,
// pattern/order counts) without playing it, grounded on the teacher's
// cmd/moddump.
package main

import (
	"fmt"
	"log"
	"os"

	moduleplayer "github.com/araxis-audio/moduleplayer"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("moddump: ")

	if len(os.Args) < 2 {
		log.Fatal("usage: moddump module.{mod,s3m,xm,it}")
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	ctx := moduleplayer.NewContext()
	if err := ctx.Load(data); err != nil {
		log.Fatal(err)
	}

	song := ctx.Song()
	fmt.Printf("Title:       %q\n", song.Title)
	fmt.Printf("Type:        %s\n", song.Type)
	fmt.Printf("Channels:    %d\n", song.Channels)
	fmt.Printf("Orders:      %d\n", len(song.Orders))
	fmt.Printf("Patterns:    %d\n", len(song.Patterns))
	fmt.Printf("Samples:     %d\n", len(song.Samples))
	fmt.Printf("Instruments: %d\n", len(song.Instruments))
	fmt.Printf("Speed/Tempo: %d/%d\n", song.InitialSpeed, song.InitialTempo)
	fmt.Println()

	for i, s := range song.Samples {
		if s.Length == 0 && s.Name == "" {
			continue
		}
		fmt.Printf("sample %3d: %-26q len=%-8d loop=[%d,%d] c4=%dHz\n",
			i+1, s.Name, s.Length, s.LoopStart, s.LoopEnd, s.C4Speed)
	}
}
