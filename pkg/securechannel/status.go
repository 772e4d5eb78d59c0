package securechannel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/backkem/matter-core/pkg/message"
)

// StatusReportMinSize covers GeneralCode(2), the vendor-qualified protocol
// id(4) and ProtocolCode(2).
const StatusReportMinSize = 8

var ErrStatusReportTooShort = errors.New("securechannel: status report too short")

// StatusReport is the generic status message. It reports the outcome of a
// handshake step and carries a protocol specific code and optional data.
type StatusReport struct {
	GeneralCode  GeneralCode
	VendorID     uint16
	ProtocolID   message.ProtocolID
	ProtocolCode uint16
	ProtocolData []byte
}

// NewStatusReport returns a secure channel status report.
func NewStatusReport(general GeneralCode, code ProtocolCode) *StatusReport {
	return &StatusReport{
		GeneralCode:  general,
		VendorID:     message.VendorIDCommon,
		ProtocolID:   Protocol,
		ProtocolCode: uint16(code),
	}
}

// Success returns a StatusReport signalling success.
func Success() *StatusReport {
	return NewStatusReport(GeneralCodeSuccess, ProtocolCodeSuccess)
}

// InvalidParam returns a failure StatusReport with the InvalidParam protocol code.
func InvalidParam() *StatusReport {
	return NewStatusReport(GeneralCodeFailure, ProtocolCodeInvalidParam)
}

// CloseSession returns the report a peer sends when it tears down a session.
func CloseSession() *StatusReport {
	return NewStatusReport(GeneralCodeSuccess, ProtocolCodeCloseSession)
}

// Busy asks the peer to wait at least waitMs milliseconds before retrying.
func Busy(waitMs uint16) *StatusReport {
	s := NewStatusReport(GeneralCodeBusy, ProtocolCodeBusy)
	s.ProtocolData = binary.LittleEndian.AppendUint16(nil, waitMs)
	return s
}

// EncodeStatusReport serializes s, multi-octet fields little-endian.
func EncodeStatusReport(s *StatusReport) []byte {
	buf := make([]byte, StatusReportMinSize, StatusReportMinSize+len(s.ProtocolData))
	binary.LittleEndian.PutUint16(buf[0:], uint16(s.GeneralCode))
	binary.LittleEndian.PutUint16(buf[2:], uint16(s.ProtocolID))
	binary.LittleEndian.PutUint16(buf[4:], s.VendorID)
	binary.LittleEndian.PutUint16(buf[6:], s.ProtocolCode)
	return append(buf, s.ProtocolData...)
}

// Encode is shorthand for EncodeStatusReport(s).
func (s *StatusReport) Encode() []byte { return EncodeStatusReport(s) }

// DecodeStatusReport parses a StatusReport. Trailing octets are kept as
// protocol data.
func DecodeStatusReport(data []byte) (*StatusReport, error) {
	if len(data) < StatusReportMinSize {
		return nil, ErrStatusReportTooShort
	}
	s := &StatusReport{
		GeneralCode:  GeneralCode(binary.LittleEndian.Uint16(data[0:])),
		ProtocolID:   message.ProtocolID(binary.LittleEndian.Uint16(data[2:])),
		VendorID:     binary.LittleEndian.Uint16(data[4:]),
		ProtocolCode: binary.LittleEndian.Uint16(data[6:]),
	}
	if len(data) > StatusReportMinSize {
		s.ProtocolData = append([]byte(nil), data[StatusReportMinSize:]...)
	}
	return s, nil
}

func (s *StatusReport) IsSuccess() bool { return s.GeneralCode == GeneralCodeSuccess }

// IsSecureChannel reports whether ProtocolCode is a secure channel code.
func (s *StatusReport) IsSecureChannel() bool {
	return s.VendorID == message.VendorIDCommon && s.ProtocolID == Protocol
}

func (s *StatusReport) SecureChannelCode() ProtocolCode { return ProtocolCode(s.ProtocolCode) }

func (s *StatusReport) IsBusy() bool {
	return s.GeneralCode == GeneralCodeBusy && s.IsSecureChannel() &&
		s.SecureChannelCode() == ProtocolCodeBusy
}

// BusyWaitTime returns the wait time of a busy report in milliseconds, or
// zero.
func (s *StatusReport) BusyWaitTime() uint16 {
	if !s.IsBusy() || len(s.ProtocolData) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(s.ProtocolData)
}

func (s *StatusReport) String() string {
	if s.IsSecureChannel() {
		return fmt.Sprintf("StatusReport{%s, %s}", s.GeneralCode, s.SecureChannelCode())
	}
	return fmt.Sprintf("StatusReport{%s, protocol %04x:%s, code 0x%04x}",
		s.GeneralCode, s.VendorID, s.ProtocolID, s.ProtocolCode)
}

// Error lets a failed report be returned as an error.
func (s *StatusReport) Error() string { return s.String() }
