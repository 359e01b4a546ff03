package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// blockFrames is the fixed number of frames delivered per capture
// callback.
const blockFrames = 1024

type portAudioCapture struct {
	stream *portaudio.Stream
}

// New creates a PortAudio-backed capture source.
func New() (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{}, nil
}

func (p *portAudioCapture) Start(cfg StreamConfig, sink Sink) error {
	if p.stream != nil {
		return fmt.Errorf("capture already started")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	device, err := findDevice(cfg.Device)
	if err != nil {
		return err
	}
	if device.MaxInputChannels < cfg.Channels {
		return fmt.Errorf("device %s has %d input channels, need %d",
			device.Name, device.MaxInputChannels, cfg.Channels)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: blockFrames,
	}

	// The callback runs on PortAudio's real-time thread. It only
	// widens/copies the block and hands it to the sink; the sink's
	// Append is a short-lock buffer push.
	var total uint64
	var stream *portaudio.Stream
	if cfg.BitDepth == 16 {
		stream, err = portaudio.OpenStream(params, func(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			frames := len(in) / cfg.Channels
			samples := make([]int32, len(in))
			for i, v := range in {
				samples[i] = int32(v)
			}
			sink.Append(Batch{
				Samples:  samples,
				Frames:   frames,
				Start:    total,
				Overflow: flags&portaudio.InputOverflow != 0,
			})
			total += uint64(frames)
		})
	} else {
		// 24-bit material arrives from the driver as left-justified
		// int32; the writer narrows it at serialization time.
		stream, err = portaudio.OpenStream(params, func(in []int32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			frames := len(in) / cfg.Channels
			samples := make([]int32, len(in))
			copy(samples, in)
			sink.Append(Batch{
				Samples:  samples,
				Frames:   frames,
				Start:    total,
				Overflow: flags&portaudio.InputOverflow != 0,
			})
			total += uint64(frames)
		})
	}
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	p.stream = stream
	return nil
}

func (p *portAudioCapture) Stop() error {
	if p.stream == nil {
		return nil
	}
	err := p.stream.Stop()
	p.stream.Close()
	p.stream = nil
	return err
}

func (p *portAudioCapture) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:       d.Name,
				Name:     d.Name,
				Channels: d.MaxInputChannels,
				Default:  d == defaultDevice,
			})
		}
	}
	return result, nil
}

func (p *portAudioCapture) Close() error {
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	return portaudio.Terminate()
}

func findDevice(id string) (*portaudio.DeviceInfo, error) {
	if id == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", id)
}
