// flac-frame parses every frame of one or more FLAC files and reports
// decode errors, optionally under a CPU profile.
package main

import (
	"bufio"
	"flag"
	"io"
	"log"
	"os"
	"runtime/pprof"

	"github.com/pcmstream/flac"
)

var flagProfile string

func init() {
	flag.StringVar(&flagProfile, "cpuprofile", "", "write a CPU profile to this path")
}

func main() {
	flag.Parse()
	if flagProfile != "" {
		f, err := os.Create(flagProfile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	for _, path := range flag.Args() {
		if err := decodeAll(path); err != nil {
			log.Printf("%s: %+v", path, err)
		}
	}
}

func decodeAll(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stream, err := flac.New(bufio.NewReader(f))
	if err != nil {
		return err
	}

	nframes := 0
	for {
		if _, err := stream.ParseNext(); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		nframes++
	}
	log.Printf("%s: %d frames, %s", path, nframes, stream.Info.Duration())
	return nil
}
