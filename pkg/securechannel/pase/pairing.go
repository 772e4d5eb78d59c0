package pase

import (
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/matter-core/pkg/exchange"
	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/securechannel"
	"github.com/backkem/matter-core/pkg/session"
	"github.com/backkem/matter-core/pkg/transport"
)

// DefaultResponseTimeout bounds each handshake step.
const DefaultResponseTimeout = 30 * time.Second

// busyWaitMs is advertised to initiators that arrive mid-handshake.
const busyWaitMs = 5000

// SessionEstablishmentDelegate learns how a pairing ended.
type SessionEstablishmentDelegate interface {
	OnSessionEstablished(s *session.Session)
	OnSessionEstablishmentError(err error)
}

// PairingConfig configures a Pairing.
type PairingConfig struct {
	Sessions  *session.Manager
	Exchanges *exchange.Manager
	Delegate  SessionEstablishmentDelegate

	// ResponseTimeout defaults to DefaultResponseTimeout.
	ResponseTimeout time.Duration

	LoggerFactory logging.LoggerFactory
}

// Pairing runs handshakes over exchanges and installs the resulting PASE
// sessions in the session manager. It runs one handshake at a time, in
// either role. All methods must be called with the stack lock held.
type Pairing struct {
	sessions  *session.Manager
	exchanges *exchange.Manager
	delegate  SessionEstablishmentDelegate
	timeout   time.Duration
	log       logging.LeveledLogger

	// Responder parameters, set while waiting for pairing.
	verifier   *Verifier
	salt       []byte
	iterations uint32

	hs        *Session
	ec        *exchange.Context
	unsecured *session.Session
}

// NewPairing validates config and returns an idle pairing.
func NewPairing(config PairingConfig) (*Pairing, error) {
	if config.Sessions == nil || config.Exchanges == nil {
		return nil, fmt.Errorf("pase: pairing needs session and exchange managers")
	}
	p := &Pairing{
		sessions:  config.Sessions,
		exchanges: config.Exchanges,
		delegate:  config.Delegate,
		timeout:   config.ResponseTimeout,
	}
	if p.timeout == 0 {
		p.timeout = DefaultResponseTimeout
	}
	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("pase")
	}
	return p, nil
}

// InProgress reports whether a handshake is running.
func (p *Pairing) InProgress() bool { return p.hs != nil }

// Cancel abandons the running handshake and reports ErrCancelled to the
// delegate. The peer is not told.
func (p *Pairing) Cancel() { p.fail(ErrCancelled, false) }

// Pair starts a handshake with the device at peer. The outcome is reported
// to the delegate.
func (p *Pairing) Pair(peer transport.PeerAddress, passcode uint32) error {
	hs, err := NewInitiator(passcode)
	if err != nil {
		return err
	}
	return p.pair(peer, hs)
}

// PairWithParams is Pair for a commissioner that already knows the PBKDF
// parameters of the device.
func (p *Pairing) PairWithParams(peer transport.PeerAddress, passcode uint32, salt []byte, iterations uint32) error {
	hs, err := NewInitiatorWithParams(passcode, salt, iterations)
	if err != nil {
		return err
	}
	return p.pair(peer, hs)
}

func (p *Pairing) pair(peer transport.PeerAddress, hs *Session) error {
	if p.hs != nil {
		return ErrPairingInProgress
	}
	us, err := p.sessions.NewUnsecuredSession(peer)
	if err != nil {
		return err
	}
	id, err := p.sessions.AllocateSessionID()
	if err != nil {
		p.sessions.ExpireSession(us)
		return err
	}
	ec, err := p.exchanges.NewContext(us, p)
	if err != nil {
		p.sessions.ExpireSession(us)
		return err
	}
	ec.SetResponseTimeout(p.timeout)

	req, err := hs.Start(id)
	if err == nil {
		err = ec.SendMessage(securechannel.Protocol, securechannel.OpcodePBKDFParamRequest.Uint8(), req, exchange.ExpectResponse)
	}
	if err != nil {
		ec.Abort()
		p.sessions.ExpireSession(us)
		return err
	}
	p.hs, p.ec, p.unsecured = hs, ec, us
	if p.log != nil {
		p.log.Debugf("pairing with %s, local session %d", peer, id)
	}
	return nil
}

// WaitForPairing accepts handshakes from commissioners that know the
// passcode behind verifier.
func (p *Pairing) WaitForPairing(verifier *Verifier, salt []byte, iterations uint32) error {
	if _, err := NewResponder(verifier, salt, iterations); err != nil {
		return err
	}
	err := p.exchanges.RegisterUnsolicitedMessageHandlerForType(
		securechannel.Protocol, securechannel.OpcodePBKDFParamRequest.Uint8(), p, false)
	if err != nil {
		return err
	}
	p.verifier = verifier
	p.salt = append([]byte(nil), salt...)
	p.iterations = iterations
	return nil
}

// StopWaitingForPairing closes the pairing window. A handshake already
// running continues.
func (p *Pairing) StopWaitingForPairing() {
	if p.verifier == nil {
		return
	}
	_ = p.exchanges.UnregisterUnsolicitedMessageHandlerForType(
		securechannel.Protocol, securechannel.OpcodePBKDFParamRequest.Uint8())
	p.verifier = nil
}

// OnMessageReceived implements exchange.Delegate.
func (p *Pairing) OnMessageReceived(ec *exchange.Context, _ *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte) error {
	if hdr.ProtocolID != securechannel.Protocol {
		return p.unexpected(ec, hdr)
	}
	op := securechannel.Opcode(hdr.ProtocolOpcode)

	if op == securechannel.OpcodePBKDFParamRequest && ec != p.ec {
		return p.handleRequest(ec, payload)
	}
	if ec != p.ec {
		return p.unexpected(ec, hdr)
	}
	if op == securechannel.OpcodeStatusReport {
		return p.handleStatusReport(payload)
	}

	var (
		next securechannel.Opcode
		out  []byte
		err  error
	)
	switch {
	case op == securechannel.OpcodePBKDFParamResponse && p.hs.Role() == RoleInitiator:
		next = securechannel.OpcodePASEPake1
		out, err = p.hs.HandlePBKDFParamResponse(payload)
	case op == securechannel.OpcodePASEPake1 && p.hs.Role() == RoleResponder:
		next = securechannel.OpcodePASEPake2
		out, err = p.hs.HandlePake1(payload)
	case op == securechannel.OpcodePASEPake2 && p.hs.Role() == RoleInitiator:
		next = securechannel.OpcodePASEPake3
		out, err = p.hs.HandlePake2(payload)
	case op == securechannel.OpcodePASEPake3 && p.hs.Role() == RoleResponder:
		return p.handlePake3(payload)
	default:
		err = fmt.Errorf("%w: %s in state %s", ErrUnexpectedMessage, op, p.hs.State())
	}
	if err != nil {
		p.fail(err, true)
		return nil
	}
	if err := ec.SendMessage(securechannel.Protocol, next.Uint8(), out, exchange.ExpectResponse); err != nil {
		p.fail(err, false)
	}
	return nil
}

func (p *Pairing) handleRequest(ec *exchange.Context, payload []byte) error {
	if p.verifier == nil {
		ec.Close()
		return nil
	}
	if p.hs != nil {
		if p.log != nil {
			p.log.Infof("rejecting pairing request on %s: busy", ec.Session())
		}
		err := ec.SendMessage(securechannel.Protocol, securechannel.OpcodeStatusReport.Uint8(),
			securechannel.Busy(busyWaitMs).Encode(), 0)
		ec.Close()
		return err
	}

	hs, err := NewResponder(p.verifier, p.salt, p.iterations)
	if err != nil {
		ec.Close()
		return err
	}
	p.hs, p.ec, p.unsecured = hs, ec, ec.Session()
	ec.SetResponseTimeout(p.timeout)

	id, err := p.sessions.AllocateSessionID()
	if err != nil {
		p.fail(err, true)
		return nil
	}
	out, err := hs.HandlePBKDFParamRequest(payload, id)
	if err != nil {
		p.fail(err, true)
		return nil
	}
	if err := ec.SendMessage(securechannel.Protocol, securechannel.OpcodePBKDFParamResponse.Uint8(), out, exchange.ExpectResponse); err != nil {
		p.fail(err, false)
	}
	return nil
}

func (p *Pairing) handlePake3(payload []byte) error {
	if err := p.hs.HandlePake3(payload); err != nil {
		p.fail(err, true)
		return nil
	}
	s, err := p.install()
	if err != nil {
		p.fail(err, true)
		return nil
	}
	if err := p.ec.SendMessage(securechannel.Protocol, securechannel.OpcodeStatusReport.Uint8(),
		securechannel.Success().Encode(), 0); err != nil {
		p.sessions.ExpireSession(s)
		p.fail(err, false)
		return nil
	}
	p.finish(s)
	return nil
}

func (p *Pairing) handleStatusReport(payload []byte) error {
	sr, err := securechannel.DecodeStatusReport(payload)
	if err != nil {
		p.fail(err, false)
		return nil
	}
	switch {
	case sr.IsBusy():
		p.fail(fmt.Errorf("%w: retry in %dms", ErrPeerBusy, sr.BusyWaitTime()), false)
		return nil
	case !sr.IsSuccess() || p.hs.State() != StateWaitingStatusReport:
		p.fail(fmt.Errorf("%w: %s", ErrInvalidStatusReport, sr), false)
		return nil
	}
	if err := p.hs.HandleStatusReport(true); err != nil {
		p.fail(err, false)
		return nil
	}
	s, err := p.install()
	if err != nil {
		p.fail(err, false)
		return nil
	}
	p.finish(s)
	return nil
}

// install adds the secure session for the completed handshake.
func (p *Pairing) install() (*session.Session, error) {
	keys := p.hs.SessionKeys()
	if keys == nil {
		return nil, ErrSessionNotReady
	}
	role := session.SessionRoleInitiator
	if p.hs.Role() == RoleResponder {
		role = session.SessionRoleResponder
	}
	return p.sessions.NewSecureSession(session.SecureSessionConfig{
		Type:           session.SessionTypePASE,
		Role:           role,
		LocalSessionID: p.hs.LocalSessionID(),
		PeerSessionID:  p.hs.PeerSessionID(),
		I2RKey:         keys.I2RKey,
		R2IKey:         keys.R2IKey,
		PeerAddress:    p.unsecured.PeerAddress(),
	})
}

func (p *Pairing) finish(s *session.Session) {
	ec, us := p.reset()
	ec.Close()
	p.sessions.ExpireSession(us)
	if p.log != nil {
		p.log.Infof("established %s", s)
	}
	if p.delegate != nil {
		p.delegate.OnSessionEstablished(s)
	}
}

// fail ends the running handshake. With notify set the peer is sent an
// invalid parameter report first.
func (p *Pairing) fail(err error, notify bool) {
	if p.hs == nil {
		return
	}
	ec, us := p.reset()
	if notify {
		_ = ec.SendMessage(securechannel.Protocol, securechannel.OpcodeStatusReport.Uint8(),
			securechannel.InvalidParam().Encode(), 0)
	}
	ec.Abort()
	if us != nil && us.Role() == session.SessionRoleInitiator {
		p.sessions.ExpireSession(us)
	}
	if p.log != nil {
		p.log.Warnf("pairing failed: %v", err)
	}
	if p.delegate != nil {
		p.delegate.OnSessionEstablishmentError(err)
	}
}

func (p *Pairing) reset() (*exchange.Context, *session.Session) {
	ec, us := p.ec, p.unsecured
	p.hs, p.ec, p.unsecured = nil, nil, nil
	return ec, us
}

func (p *Pairing) unexpected(ec *exchange.Context, hdr *message.ProtocolHeader) error {
	err := fmt.Errorf("%w: %s opcode %#02x", ErrUnexpectedMessage, hdr.ProtocolID, hdr.ProtocolOpcode)
	if ec == p.ec {
		p.fail(err, true)
		return nil
	}
	ec.Close()
	return err
}

// OnResponseTimeout implements exchange.Delegate.
func (p *Pairing) OnResponseTimeout(ec *exchange.Context) {
	if ec == p.ec {
		p.fail(ErrTimeout, false)
	}
}

// OnExchangeClosing implements exchange.Delegate.
func (p *Pairing) OnExchangeClosing(ec *exchange.Context) {
	if ec == p.ec {
		p.fail(exchange.ErrExchangeClosed, false)
	}
}
