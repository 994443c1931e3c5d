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

package heard_test

import (
	"fmt"
	"testing"

	"github.com/kronenpj/FreeDATA-experiments/internal/heard"
)

func TestAddDeduplicatesByCallsign(t *testing.T) {
	t.Parallel()
	l := heard.NewList()
	l.Add(heard.Entry{Callsign: "AA0AA-0", SNR: 3})
	l.Add(heard.Entry{Callsign: "DJ2LS-0", SNR: 5})
	l.Add(heard.Entry{Callsign: "AA0AA-0", SNR: 9})

	entries := l.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("Len = %d, want 2", len(entries))
	}
	// The refreshed station moves to the most recent slot.
	if entries[1].Callsign != "AA0AA-0" || entries[1].SNR != 9 {
		t.Errorf("most recent = %+v, want refreshed AA0AA-0", entries[1])
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	t.Parallel()
	l := heard.NewList()
	for i := 0; i < heard.Capacity+5; i++ {
		l.Add(heard.Entry{Callsign: fmt.Sprintf("CALL%d-0", i)})
	}
	if l.Len() != heard.Capacity {
		t.Fatalf("Len = %d, want %d", l.Len(), heard.Capacity)
	}
	entries := l.Snapshot()
	if entries[0].Callsign != "CALL5-0" {
		t.Errorf("oldest = %s, want CALL5-0", entries[0].Callsign)
	}
}
