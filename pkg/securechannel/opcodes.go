// Package securechannel holds the opcodes and the StatusReport message of
// the secure channel protocol, shared by the session establishment
// handshakes in its subpackages.
package securechannel

import (
	"fmt"

	"github.com/backkem/matter-core/pkg/message"
)

// Protocol is the secure channel protocol id.
const Protocol = message.ProtocolSecureChannel

// Opcode is a secure channel message type.
type Opcode uint8

const (
	OpcodeMsgCounterSyncReq  Opcode = 0x00
	OpcodeMsgCounterSyncResp Opcode = 0x01
	OpcodeStandaloneAck      Opcode = 0x10

	OpcodePBKDFParamRequest  Opcode = 0x20
	OpcodePBKDFParamResponse Opcode = 0x21
	OpcodePASEPake1          Opcode = 0x22
	OpcodePASEPake2          Opcode = 0x23
	OpcodePASEPake3          Opcode = 0x24

	OpcodeCASESigma1       Opcode = 0x30
	OpcodeCASESigma2       Opcode = 0x31
	OpcodeCASESigma3       Opcode = 0x32
	OpcodeCASESigma2Resume Opcode = 0x33

	OpcodeStatusReport Opcode = 0x40
)

var opcodeNames = map[Opcode]string{
	OpcodeMsgCounterSyncReq:  "MsgCounterSyncReq",
	OpcodeMsgCounterSyncResp: "MsgCounterSyncResp",
	OpcodeStandaloneAck:      "StandaloneAck",
	OpcodePBKDFParamRequest:  "PBKDFParamRequest",
	OpcodePBKDFParamResponse: "PBKDFParamResponse",
	OpcodePASEPake1:          "PASE_Pake1",
	OpcodePASEPake2:          "PASE_Pake2",
	OpcodePASEPake3:          "PASE_Pake3",
	OpcodeCASESigma1:         "CASE_Sigma1",
	OpcodeCASESigma2:         "CASE_Sigma2",
	OpcodeCASESigma3:         "CASE_Sigma3",
	OpcodeCASESigma2Resume:   "CASE_Sigma2Resume",
	OpcodeStatusReport:       "StatusReport",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02x)", uint8(o))
}

// Uint8 returns the opcode as carried in the protocol header.
func (o Opcode) Uint8() uint8 { return uint8(o) }

// GeneralCode is a protocol-agnostic status carried in a StatusReport.
type GeneralCode uint16

const (
	GeneralCodeSuccess GeneralCode = iota
	GeneralCodeFailure
	GeneralCodeBadPrecondition
	GeneralCodeOutOfRange
	GeneralCodeBadRequest
	GeneralCodeUnsupported
	GeneralCodeUnexpected
	GeneralCodeResourceExhausted
	GeneralCodeBusy
	GeneralCodeTimeout
	GeneralCodeContinue
	GeneralCodeAborted
	GeneralCodeInvalidArgument
	GeneralCodeNotFound
	GeneralCodeAlreadyExists
	GeneralCodePermissionDenied
	GeneralCodeDataLoss
)

var generalCodeNames = [...]string{
	"SUCCESS", "FAILURE", "BAD_PRECONDITION", "OUT_OF_RANGE", "BAD_REQUEST",
	"UNSUPPORTED", "UNEXPECTED", "RESOURCE_EXHAUSTED", "BUSY", "TIMEOUT",
	"CONTINUE", "ABORTED", "INVALID_ARGUMENT", "NOT_FOUND", "ALREADY_EXISTS",
	"PERMISSION_DENIED", "DATA_LOSS",
}

func (g GeneralCode) String() string {
	if int(g) < len(generalCodeNames) {
		return generalCodeNames[g]
	}
	return fmt.Sprintf("GeneralCode(%d)", uint16(g))
}

// ProtocolCode is a secure channel specific status.
type ProtocolCode uint16

const (
	ProtocolCodeSuccess         ProtocolCode = 0x0000
	ProtocolCodeNoSharedRoot    ProtocolCode = 0x0001
	ProtocolCodeInvalidParam    ProtocolCode = 0x0002
	ProtocolCodeCloseSession    ProtocolCode = 0x0003
	ProtocolCodeBusy            ProtocolCode = 0x0004
	ProtocolCodeSessionNotFound ProtocolCode = 0x0005
	ProtocolCodeGeneralFailure  ProtocolCode = 0xFFFF
)

var protocolCodeNames = map[ProtocolCode]string{
	ProtocolCodeSuccess:         "SESSION_ESTABLISHED",
	ProtocolCodeNoSharedRoot:    "NO_SHARED_TRUST_ROOTS",
	ProtocolCodeInvalidParam:    "INVALID_PARAMETER",
	ProtocolCodeCloseSession:    "CLOSE_SESSION",
	ProtocolCodeBusy:            "BUSY",
	ProtocolCodeSessionNotFound: "SESSION_NOT_FOUND",
	ProtocolCodeGeneralFailure:  "GENERAL_FAILURE",
}

func (p ProtocolCode) String() string {
	if name, ok := protocolCodeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ProtocolCode(0x%04x)", uint16(p))
}
