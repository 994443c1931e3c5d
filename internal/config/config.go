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

// Package config holds the daemon configuration, loaded with configulator
// from flags, environment and an optional config file.
package config

// Config stores the application configuration.
type Config struct {
	LogLevel LogLevel `name:"log-level" description:"Log level (debug, info, warn, error)" default:"info"`
	Station  Station  `name:"station" description:"Station identity"`
	Audio    Audio    `name:"audio" description:"Audio device selection"`
	Radio    Radio    `name:"radio" description:"Transceiver control"`
	Network  Network  `name:"network" description:"Control-channel network settings"`
	Modem    Modem    `name:"modem" description:"Modem and protocol behavior"`
	Database Database `name:"database" description:"Message database"`
	Metrics  Metrics  `name:"metrics" description:"Prometheus metrics"`
}

// Station identifies this station on the air.
type Station struct {
	MyCall   string `name:"mycall" description:"My callsign" default:"AA0AA"`
	MyGrid   string `name:"mygrid" description:"My Maidenhead gridsquare" default:"JN12AA"`
	SSIDList []int  `name:"ssid-list" description:"Additional SSIDs to accept calls for" default:"0,1,2,3,4,5,6,7,8,9"`
}

// Audio selects the sound devices the modem is attached to.
type Audio struct {
	RxDevice     string `name:"rx" description:"Receiving sound device name (empty selects the default device)"`
	TxDevice     string `name:"tx" description:"Transmitting sound device name (empty selects the default device)"`
	TxLevel      int    `name:"tx-audio-level" description:"Initial TX audio level in percent" default:"50"`
	RecordAudio  bool   `name:"record-audio" description:"Record received audio to disk"`
	RecordingDir string `name:"recording-dir" description:"Directory for audio recordings" default:"."`
}

// Radio configures transceiver control.
type Radio struct {
	Control     RadioControl `name:"radiocontrol" description:"Rig control backend (disabled, direct, rigctld)" default:"disabled"`
	DeviceID    int          `name:"devicename" description:"Hamlib rig model ID" default:"2028"`
	DevicePort  string       `name:"deviceport" description:"Hamlib device port" default:"/dev/ttyUSB0"`
	SerialSpeed int          `name:"serialspeed" description:"Serial port speed" default:"9600"`
	PTTType     string       `name:"pttprotocol" description:"PTT type (RIG, RTS, DTR)" default:"RTS"`
	PTTPort     string       `name:"pttport" description:"PTT port" default:"/dev/ttyUSB0"`
	DataBits    int          `name:"data-bits" description:"Serial data bits" default:"8"`
	StopBits    int          `name:"stop-bits" description:"Serial stop bits" default:"1"`
	Handshake   string       `name:"handshake" description:"Serial handshake" default:"None"`
	RigctldIP   string       `name:"rigctld-ip" description:"rigctld address" default:"127.0.0.1"`
	RigctldPort int          `name:"rigctld-port" description:"rigctld port" default:"4532"`
}

// Network configures the TCP control channel.
type Network struct {
	Bind       string `name:"bind" description:"Control channel bind address" default:"127.0.0.1"`
	SocketPort int    `name:"port" description:"Control channel TCP port" default:"3000"`
}

// Modem configures protocol behavior.
type Modem struct {
	Listen          bool     `name:"listen" description:"Accept inbound ARQ sessions" default:"true"`
	RespondToCall   bool     `name:"respond-to-call" description:"Answer directed PING frames" default:"true"`
	RespondToCQ     bool     `name:"respond-to-cq" description:"Answer CQ with QRV" default:"true"`
	EnableFSK       bool     `name:"enable-fsk" description:"Use the FSK mode family for signalling"`
	EnableMesh      bool     `name:"enable-mesh" description:"Enable mesh signalling and routing"`
	TuningRangeFMin int      `name:"tuning-range-fmin" description:"Lower tuning range limit in Hz" default:"-50"`
	TuningRangeFMax int      `name:"tuning-range-fmax" description:"Upper tuning range limit in Hz" default:"50"`
	BeaconInterval  int      `name:"beacon-interval" description:"Beacon interval in seconds" default:"300"`
	MaxSpeedLevel   int      `name:"max-speed-level" description:"Highest speed level this station will use" default:"4"`
	HMACSalts       []string `name:"hmac-salts" description:"Shared HMAC salts as LOCAL:REMOTE:salt entries"`
}

// Database configures the embedded message store.
type Database struct {
	File string `name:"file" description:"SQLite database file" default:"freedata-messages.db"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `name:"enabled" description:"Serve Prometheus metrics"`
	Bind    string `name:"bind" description:"Metrics bind address" default:"127.0.0.1"`
	Port    int    `name:"port" description:"Metrics port" default:"9100"`
}
