// Package mic is the malgo-backed microphone for the recorder.
package mic

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/paul-bouzian/saycal/internal/client/recorder"
)

// Device captures from the default input of a miniaudio context.
type Device struct {
	ctx *malgo.AllocatedContext
}

// New initialises the audio backend. Close releases it.
func New() (*Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Device{ctx: ctx}, nil
}

func (d *Device) Close() error {
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	return err
}

// Open starts a capture stream in format f.
func (d *Device) Open(f recorder.Format, onData func([]byte)) (recorder.Stream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) > 0 {
				onData(input)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	return &stream{dev: dev}, nil
}

type stream struct {
	once sync.Once
	dev  *malgo.Device
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.dev.Stop()
		s.dev.Uninit()
	})
	return err
}

var _ recorder.Device = (*Device)(nil)
