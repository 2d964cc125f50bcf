// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package testing

// PN532 command codes answered by the simulator
const (
	CmdGetFirmwareVersion  = 0x02
	CmdSAMConfiguration    = 0x14
	CmdRFConfiguration     = 0x32
	CmdInDataExchange      = 0x40
	CmdInListPassiveTarget = 0x4A
	CmdInRelease           = 0x52
)

// NTAG commands carried inside InDataExchange
const (
	NTAGCmdRead  = 0x30
	NTAGCmdWrite = 0xA2
)

// Response payloads below start with the response code (command + 1) and
// carry no frame identifier, matching what a transport hands back.

// BuildFirmwareVersionResponse creates a GetFirmwareVersion response
func BuildFirmwareVersionResponse(ic, ver, rev, support byte) []byte {
	return []byte{CmdGetFirmwareVersion + 1, ic, ver, rev, support}
}

// BuildNoTagResponse creates an empty InListPassiveTarget response
func BuildNoTagResponse() []byte {
	return []byte{CmdInListPassiveTarget + 1, 0x00}
}

// BuildTagDetectionResponse creates an InListPassiveTarget response for one
// NTAG target: Tg, ATQA 00 44, SAK 00, then the UID.
func BuildTagDetectionResponse(uid []byte) []byte {
	response := make([]byte, 0, 7+len(uid))
	response = append(response, CmdInListPassiveTarget+1, 0x01, 0x01, 0x00, 0x44, 0x00, byte(len(uid)))
	return append(response, uid...)
}

// BuildDataExchangeResponse creates a successful InDataExchange response
func BuildDataExchangeResponse(data []byte) []byte {
	response := make([]byte, 0, 2+len(data))
	response = append(response, CmdInDataExchange+1, StatusOK)
	return append(response, data...)
}

// BuildDataExchangeError creates a failed InDataExchange response
func BuildDataExchangeError(status byte) []byte {
	return []byte{CmdInDataExchange + 1, status}
}
