package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// DefaultSampleRates are tried, in order, after any configured preference.
var DefaultSampleRates = []int{16000, 48000, 44100, 32000, 24000}

// FramesPerBuffer is 20ms of audio at 16kHz.
const FramesPerBuffer = 320

// Init and Terminate bracket all PortAudio use in a process.
func Init() error      { return portaudio.Initialize() }
func Terminate() error { return portaudio.Terminate() }

// Mic wraps a PortAudio mono PCM16 capture stream.
type Mic struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
}

// NewMic opens a PortAudio capture stream with the given sample rate and buffer size (in frames).
func NewMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return &Mic{stream: stream, buf: buf, sampleRate: sampleRate}, nil
}

// OpenMic tries each candidate rate until the default input device accepts one.
func OpenMic(rates []int) (*Mic, error) {
	if len(rates) == 0 {
		rates = DefaultSampleRates
	}
	var errs []error
	for _, rate := range rates {
		mic, err := NewMic(rate, FramesPerBuffer)
		if err != nil {
			slog.Warn("microphone open failed", "component", "audio", "sample_rate", rate, "error", err)
			errs = append(errs, fmt.Errorf("%d Hz: %w", rate, err))
			continue
		}
		return mic, nil
	}
	return nil, fmt.Errorf("open microphone: %w", errors.Join(errs...))
}

func (m *Mic) SampleRate() int { return m.sampleRate }
func (m *Mic) Start() error    { return m.stream.Start() }
func (m *Mic) Stop() error     { return m.stream.Stop() }
func (m *Mic) Close() error    { return m.stream.Close() }

// Stream reads from the mic and writes PCM16-LE to w until an error or stop.
func (m *Mic) Stream(w io.Writer) error {
	var out bytes.Buffer
	out.Grow(len(m.buf) * 2) // pre-allocate: int16 = 2 bytes per sample
	for {
		if err := m.stream.Read(); err != nil {
			return err
		}
		out.Reset()
		if err := binary.Write(&out, binary.LittleEndian, m.buf); err != nil {
			return err
		}
		if _, err := w.Write(out.Bytes()); err != nil {
			return err
		}
	}
}
