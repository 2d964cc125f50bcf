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

package pn532

// PN532 command codes
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

// NTAG commands sent through InDataExchange
const (
	ntagCmdRead  = 0x30
	ntagCmdWrite = 0xA2
)

// Command arguments
var (
	// SAM normal mode, 1 s virtual card timeout, IRQ on
	samNormalMode = []byte{0x01, 0x14, 0x01}
	// 106 kbps type A, one target
	listTypeA = []byte{0x01, 0x00}
)

// rfMaxRetries is RFConfiguration item 0x05: MxRtyATR, MxRtyPSL and
// MxRtyPassiveActivation. Two activation retries keep a single poll short.
func rfMaxRetries(passive byte) []byte {
	return []byte{0x05, 0x00, 0x01, passive}
}

const (
	// pn532IC is the IC byte of a genuine PN532 firmware answer.
	pn532IC = 0x32
	// target is always 1: only one tag is ever listed.
	target = 0x01
	// ntagReadLen is what one NTAG READ returns: four pages.
	ntagReadLen = 16
)
