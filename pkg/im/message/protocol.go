// Package message encodes and decodes the Interaction Model messages and
// information blocks (IBs) used by reads.
package message

import (
	"fmt"

	"github.com/backkem/matter-core/pkg/message"
)

// ProtocolID is the Interaction Model protocol identifier.
const ProtocolID = message.ProtocolInteractionModel

// Revision is written under tag 0xFF of every top-level message.
const Revision = 11

// Opcode is an Interaction Model message type.
type Opcode uint8

const (
	OpcodeStatusResponse    Opcode = 0x01
	OpcodeReadRequest       Opcode = 0x02
	OpcodeSubscribeRequest  Opcode = 0x03
	OpcodeSubscribeResponse Opcode = 0x04
	OpcodeReportData        Opcode = 0x05
	OpcodeWriteRequest      Opcode = 0x06
	OpcodeWriteResponse     Opcode = 0x07
	OpcodeInvokeRequest     Opcode = 0x08
	OpcodeInvokeResponse    Opcode = 0x09
	OpcodeTimedRequest      Opcode = 0x0a
)

var opcodeNames = map[Opcode]string{
	OpcodeStatusResponse:    "StatusResponse",
	OpcodeReadRequest:       "ReadRequest",
	OpcodeSubscribeRequest:  "SubscribeRequest",
	OpcodeSubscribeResponse: "SubscribeResponse",
	OpcodeReportData:        "ReportData",
	OpcodeWriteRequest:      "WriteRequest",
	OpcodeWriteResponse:     "WriteResponse",
	OpcodeInvokeRequest:     "InvokeRequest",
	OpcodeInvokeResponse:    "InvokeResponse",
	OpcodeTimedRequest:      "TimedRequest",
}

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Opcode(0x%02x)", uint8(o))
}
