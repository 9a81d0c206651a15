package audio

import "time"

// Fixed stream parameters shared by the capture and playback paths.
const (
	// CaptureSampleRate is the microphone sample rate expected by the remote model.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the sample rate of synthesised speech.
	PlaybackSampleRate = 24000

	// FrameSamples is the number of samples pulled from the microphone per read.
	FrameSamples = 1024

	// BytesPerSample is the width of one signed 16-bit little-endian sample.
	BytesPerSample = 2
)

// Format describes the sample rate and channel count of an audio stream.
// Samples are always signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// CaptureFormat is the microphone format: 16 kHz mono.
var CaptureFormat = Format{SampleRate: CaptureSampleRate, Channels: 1}

// PlaybackFormat is the speaker format: 24 kHz mono.
var PlaybackFormat = Format{SampleRate: PlaybackSampleRate, Channels: 1}

// FrameBytes returns the byte length of a frame holding samples samples per
// channel in format f.
func (f Format) FrameBytes(samples int) int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return samples * ch * BytesPerSample
}

// Duration returns the playback duration of n bytes of PCM in format f.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := n / f.FrameBytes(1)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Frame is a single captured block of PCM audio. Frames have no identity: each
// one is produced by a [Source] and consumed exactly once downstream.
type Frame struct {
	// Data holds the raw PCM bytes.
	Data []byte

	// SampleRate in Hz (16000 for microphone frames).
	SampleRate int

	// Channels is 1 for mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}
