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

package radio_test

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/kronenpj/FreeDATA-experiments/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRigctld speaks just enough of the rigctld text protocol.
type fakeRigctld struct {
	listener net.Listener

	mu        sync.Mutex
	ptt       bool
	frequency int
	commands  []string
}

func newFakeRigctld(t *testing.T) *fakeRigctld {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeRigctld{listener: listener, frequency: 7045000}
	go f.serve()
	t.Cleanup(func() { listener.Close() })
	return f
}

func (f *fakeRigctld) serve() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeRigctld) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		f.mu.Lock()
		f.commands = append(f.commands, line)
		f.mu.Unlock()

		switch {
		case line == "T 1":
			f.mu.Lock()
			f.ptt = true
			f.mu.Unlock()
			fmt.Fprintln(conn, "RPRT 0")
		case line == "T 0":
			f.mu.Lock()
			f.ptt = false
			f.mu.Unlock()
			fmt.Fprintln(conn, "RPRT 0")
		case strings.HasPrefix(line, "F "):
			f.mu.Lock()
			fmt.Sscanf(line, "F %d", &f.frequency)
			f.mu.Unlock()
			fmt.Fprintln(conn, "RPRT 0")
		case line == "f":
			f.mu.Lock()
			fmt.Fprintf(conn, "%d\n", f.frequency)
			f.mu.Unlock()
		case strings.HasPrefix(line, "M "):
			fmt.Fprintln(conn, "RPRT 0")
		case line == "m":
			fmt.Fprintln(conn, "USB")
			fmt.Fprintln(conn, "2700")
		default:
			fmt.Fprintln(conn, "RPRT -1")
		}
	}
}

func (f *fakeRigctld) pttState() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ptt
}

func TestRigctldPTT(t *testing.T) {
	t.Parallel()
	fake := newFakeRigctld(t)
	rig, err := radio.DialRigctld(fake.listener.Addr().String())
	require.NoError(t, err)
	defer rig.Close()

	require.NoError(t, rig.PTTOn())
	assert.True(t, fake.pttState())
	require.NoError(t, rig.PTTOff())
	assert.False(t, fake.pttState())
}

func TestRigctldFrequency(t *testing.T) {
	t.Parallel()
	fake := newFakeRigctld(t)
	rig, err := radio.DialRigctld(fake.listener.Addr().String())
	require.NoError(t, err)
	defer rig.Close()

	require.NoError(t, rig.SetFrequency(14093000))
	hz, err := rig.Frequency()
	require.NoError(t, err)
	assert.Equal(t, 14093000, hz)
}

func TestRigctldMode(t *testing.T) {
	t.Parallel()
	fake := newFakeRigctld(t)
	rig, err := radio.DialRigctld(fake.listener.Addr().String())
	require.NoError(t, err)
	defer rig.Close()

	require.NoError(t, rig.SetMode("usb"))
	mode, err := rig.Mode()
	require.NoError(t, err)
	assert.Equal(t, "USB", mode)
}

func TestNullRadio(t *testing.T) {
	t.Parallel()
	rig := &radio.Null{}
	require.NoError(t, rig.PTTOn())
	require.NoError(t, rig.SetFrequency(7045000))
	hz, err := rig.Frequency()
	require.NoError(t, err)
	assert.Equal(t, 7045000, hz)
	require.NoError(t, rig.PTTOff())
	require.NoError(t, rig.Close())
}
