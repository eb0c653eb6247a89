// flac2wav converts FLAC files to WAV files.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"

	"github.com/pcmstream/flac"
)

var flagForce bool

func init() {
	flag.BoolVar(&flagForce, "f", false, "force overwrite of output files")
}

func main() {
	flag.Parse()
	for _, path := range flag.Args() {
		if err := convert(path); err != nil {
			log.Fatalf("%s: %+v", path, err)
		}
	}
}

func convert(path string) error {
	stream, err := flac.Open(path)
	if err != nil {
		return err
	}
	defer stream.Close()

	wavPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
	if !flagForce {
		if _, err := os.Stat(wavPath); err == nil {
			return fmt.Errorf("%s already exists; use -f to overwrite", wavPath)
		}
	}
	fw, err := os.Create(wavPath)
	if err != nil {
		return err
	}
	defer fw.Close()

	enc := wav.NewEncoder(fw, int(stream.Info.SampleRate), int(stream.Info.BitsPerSample), int(stream.Info.NChannels), 1)
	defer enc.Close()

	for {
		fr, err := stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		buf, err := stream.Buffer(fr).IntBuffer(int(stream.Info.SampleRate))
		if err != nil {
			return err
		}
		if err := enc.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
