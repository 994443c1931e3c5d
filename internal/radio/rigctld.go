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

package radio

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const rigctldTimeout = 2 * time.Second

// Rigctld drives a hamlib rigctld daemon over its TCP text protocol.
type Rigctld struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// DialRigctld connects to a running rigctld.
func DialRigctld(addr string) (*Rigctld, error) {
	conn, err := net.DialTimeout("tcp", addr, rigctldTimeout)
	if err != nil {
		return nil, fmt.Errorf("could not connect to rigctld at %s: %w", addr, err)
	}
	return &Rigctld{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// command sends one rigctld command and returns the response lines up to the
// RPRT terminator (or the single-line answer of get commands).
func (r *Rigctld) command(cmd string, answerLines int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.conn.SetDeadline(time.Now().Add(rigctldTimeout)); err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(r.conn, "%s\n", cmd); err != nil {
		return nil, fmt.Errorf("rigctld write failed: %w", err)
	}

	var lines []string
	for i := 0; i < answerLines; i++ {
		line, err := r.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("rigctld read failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "RPRT ") {
			if line != "RPRT 0" {
				return nil, fmt.Errorf("rigctld error response %q to %q", line, cmd)
			}
			return lines, nil
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (r *Rigctld) PTTOn() error {
	_, err := r.command("T 1", 1)
	return err
}

func (r *Rigctld) PTTOff() error {
	_, err := r.command("T 0", 1)
	return err
}

func (r *Rigctld) SetFrequency(hz int) error {
	_, err := r.command(fmt.Sprintf("F %d", hz), 1)
	return err
}

func (r *Rigctld) Frequency() (int, error) {
	lines, err := r.command("f", 1)
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, fmt.Errorf("rigctld returned no frequency")
	}
	hz, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, fmt.Errorf("rigctld returned bad frequency %q: %w", lines[0], err)
	}
	return hz, nil
}

func (r *Rigctld) SetMode(mode string) error {
	_, err := r.command(fmt.Sprintf("M %s 0", strings.ToUpper(mode)), 1)
	return err
}

func (r *Rigctld) Mode() (string, error) {
	lines, err := r.command("m", 2)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("rigctld returned no mode")
	}
	return lines[0], nil
}

func (r *Rigctld) Close() error {
	return r.conn.Close()
}
