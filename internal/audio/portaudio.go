// SPDX-License-Identifier: AGPL-3.0-or-later
// FreeDATA-experiments - HF ARQ modem and TNC in a single binary
// Copyright (C) 2024-2026 FreeDATA-experiments contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/kronenpj/FreeDATA-experiments>

// Package audio is the PortAudio-backed sound device capability.
package audio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/kronenpj/FreeDATA-experiments/internal/config"
)

// ErrDeviceNotFound indicates no sound device matched the configured name.
var ErrDeviceNotFound = errors.New("audio device not found")

const (
	// SampleRate matches the FreeDV-family waveforms.
	SampleRate = 48000
	// FramesPerBuffer is 20 ms of audio per hardware exchange.
	FramesPerBuffer = 960
)

// Initialize brings up the PortAudio runtime.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate tears down the PortAudio runtime.
func Terminate() error {
	return portaudio.Terminate()
}

// Device is a half-duplex pair of input and output streams implementing the
// modem's AudioIO capability.
type Device struct {
	mu     sync.Mutex
	in     *portaudio.Stream
	out    *portaudio.Stream
	inBuf  []float32
	outBuf []float32
	closed bool
}

// Open opens the configured input and output devices, falling back to the
// system defaults when no name is configured.
func Open(cfg *config.Config) (*Device, error) {
	d := &Device{
		inBuf:  make([]float32, FramesPerBuffer),
		outBuf: make([]float32, FramesPerBuffer),
	}

	inDev, err := findDevice(cfg.Audio.RxDevice, true)
	if err != nil {
		return nil, err
	}
	outDev, err := findDevice(cfg.Audio.TxDevice, false)
	if err != nil {
		return nil, err
	}

	inParams := portaudio.LowLatencyParameters(inDev, nil)
	inParams.SampleRate = SampleRate
	inParams.FramesPerBuffer = FramesPerBuffer
	in, err := portaudio.OpenStream(inParams, d.inBuf)
	if err != nil {
		return nil, fmt.Errorf("could not open input stream: %w", err)
	}

	outParams := portaudio.LowLatencyParameters(nil, outDev)
	outParams.SampleRate = SampleRate
	outParams.FramesPerBuffer = FramesPerBuffer
	out, err := portaudio.OpenStream(outParams, d.outBuf)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("could not open output stream: %w", err)
	}

	if err := in.Start(); err != nil {
		in.Close()
		out.Close()
		return nil, fmt.Errorf("could not start input stream: %w", err)
	}
	if err := out.Start(); err != nil {
		in.Stop()
		in.Close()
		out.Close()
		return nil, fmt.Errorf("could not start output stream: %w", err)
	}

	d.in = in
	d.out = out
	return d, nil
}

func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("could not list audio devices: %w", err)
	}
	for _, dev := range devices {
		if !strings.Contains(dev.Name, name) {
			continue
		}
		if input && dev.MaxInputChannels < 1 {
			continue
		}
		if !input && dev.MaxOutputChannels < 1 {
			continue
		}
		return dev, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// Play writes samples to the output device in hardware-sized chunks, zero
// padding the tail.
func (d *Device) Play(samples []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("audio device closed")
	}
	for offset := 0; offset < len(samples); offset += FramesPerBuffer {
		end := offset + FramesPerBuffer
		if end > len(samples) {
			for i := range d.outBuf {
				d.outBuf[i] = 0
			}
			copy(d.outBuf, samples[offset:])
		} else {
			copy(d.outBuf, samples[offset:end])
		}
		if err := d.out.Write(); err != nil {
			return fmt.Errorf("could not write samples: %w", err)
		}
	}
	return nil
}

// Read blocks for the next buffer of received samples.
func (d *Device) Read() ([]float32, error) {
	if err := d.in.Read(); err != nil {
		return nil, fmt.Errorf("could not read samples: %w", err)
	}
	out := make([]float32, len(d.inBuf))
	copy(out, d.inBuf)
	return out, nil
}

// Close stops and closes both streams.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	var errs []error
	if d.in != nil {
		errs = append(errs, d.in.Stop(), d.in.Close())
	}
	if d.out != nil {
		errs = append(errs, d.out.Stop(), d.out.Close())
	}
	return errors.Join(errs...)
}
