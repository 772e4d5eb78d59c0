// Package spake2p implements SPAKE2+ over P-256 with SHA-256, HKDF and
// HMAC (RFC 9383), the PAKE that PASE runs on top of.
//
// The prover knows the passcode-derived scalars w0 and w1. The verifier
// holds w0 and the point L = w1*P only.
//
//	prover                         verifier
//	pA := Share()      ---pA--->   Finish(pA); pB := Share()
//	Finish(pB)         <--pB,cB-   cB := Confirmation()
//	VerifyConfirmation(cB)
//	cA := Confirmation() --cA-->   VerifyConfirmation(cA)
//	SharedSecret()                 SharedSecret()
package spake2p

import (
	"crypto/elliptic"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"math/big"

	"github.com/backkem/matter-core/pkg/crypto"
)

const (
	ScalarSize = 32
	PointSize  = 65
	// WSSize is the length of each PBKDF2 output half before reduction.
	WSSize = 40
	// KeySize is the length of Ka, Ke and each confirmation key.
	KeySize = 16
)

var (
	ErrInvalidScalar      = errors.New("spake2p: scalar must be 32 bytes")
	ErrInvalidPoint       = errors.New("spake2p: invalid P-256 point")
	ErrInvalidState       = errors.New("spake2p: operation not valid in current state")
	ErrConfirmationFailed = errors.New("spake2p: key confirmation failed")
)

var curve = elliptic.P256()

// Uncompressed encodings of the fixed points M and N.
var (
	encodedM = []byte{
		0x04, 0x88, 0x6e, 0x2f, 0x97, 0xac, 0xe4, 0x6e, 0x55, 0xba, 0x9d, 0xd7, 0x24, 0x25, 0x79, 0xf2, 0x99,
		0x3b, 0x64, 0xe1, 0x6e, 0xf3, 0xdc, 0xab, 0x95, 0xaf, 0xd4, 0x97, 0x33, 0x3d, 0x8f, 0xa1, 0x2f, 0x5f,
		0xf3, 0x55, 0x16, 0x3e, 0x43, 0xce, 0x22, 0x4e, 0x0b, 0x0e, 0x65, 0xff, 0x02, 0xac, 0x8e, 0x5c, 0x7b,
		0xe0, 0x94, 0x19, 0xc7, 0x85, 0xe0, 0xca, 0x54, 0x7d, 0x55, 0xa1, 0x2e, 0x2d, 0x20,
	}
	encodedN = []byte{
		0x04, 0xd8, 0xbb, 0xd6, 0xc6, 0x39, 0xc6, 0x29, 0x37, 0xb0, 0x4d, 0x99, 0x7f, 0x38, 0xc3, 0x77, 0x07,
		0x19, 0xc6, 0x29, 0xd7, 0x01, 0x4d, 0x49, 0xa2, 0x4b, 0x4f, 0x98, 0xba, 0xa1, 0x29, 0x2b, 0x49, 0x07,
		0xd6, 0x0a, 0xa6, 0xbf, 0xad, 0xe4, 0x50, 0x08, 0xa6, 0x36, 0x33, 0x7f, 0x51, 0x68, 0xc6, 0x4d, 0x9b,
		0xd3, 0x60, 0x34, 0x80, 0x8c, 0xd5, 0x64, 0x49, 0x0b, 0x1e, 0x65, 0x6e, 0xdb, 0xe7,
	}
	pointM = mustPoint(encodedM)
	pointN = mustPoint(encodedN)
)

type point struct{ x, y *big.Int }

func parsePoint(b []byte) (point, error) {
	if len(b) != PointSize || b[0] != 0x04 {
		return point{}, ErrInvalidPoint
	}
	x, y := new(big.Int).SetBytes(b[1:33]), new(big.Int).SetBytes(b[33:])
	if !curve.IsOnCurve(x, y) {
		return point{}, ErrInvalidPoint
	}
	return point{x, y}, nil
}

func mustPoint(b []byte) point {
	p, err := parsePoint(b)
	if err != nil {
		panic(err)
	}
	return p
}

func (p point) bytes() []byte {
	out := make([]byte, PointSize)
	out[0] = 0x04
	p.x.FillBytes(out[1:33])
	p.y.FillBytes(out[33:])
	return out
}

func (p point) mul(k *big.Int) point {
	x, y := curve.ScalarMult(p.x, p.y, k.Bytes())
	return point{x, y}
}

func (p point) add(q point) point {
	x, y := curve.Add(p.x, p.y, q.x, q.y)
	return point{x, y}
}

func (p point) sub(q point) point {
	negY := new(big.Int).Sub(curve.Params().P, q.y)
	return p.add(point{q.x, negY})
}

func baseMul(k *big.Int) point {
	x, y := curve.ScalarBaseMult(k.Bytes())
	return point{x, y}
}

// DeriveW0W1 stretches a passcode into the prover scalars w0 and w1.
func DeriveW0W1(passcode uint32, salt []byte, iterations int) (w0, w1 []byte) {
	var pin [4]byte
	binary.LittleEndian.PutUint32(pin[:], passcode)
	ws := crypto.PBKDF2SHA256(pin[:], salt, iterations, 2*WSSize)
	n := curve.Params().N
	reduce := func(b []byte) []byte {
		out := make([]byte, ScalarSize)
		new(big.Int).Mod(new(big.Int).SetBytes(b), n).FillBytes(out)
		return out
	}
	return reduce(ws[:WSSize]), reduce(ws[WSSize:])
}

// ComputeL returns the verifier point L = w1*P.
func ComputeL(w1 []byte) ([]byte, error) {
	if len(w1) != ScalarSize {
		return nil, ErrInvalidScalar
	}
	return baseMul(new(big.Int).SetBytes(w1)).bytes(), nil
}

type step int

const (
	stepStart step = iota
	stepShared
	stepKeyed
	stepConfirmed
)

// Party is one side of a SPAKE2+ run.
type Party struct {
	prover  bool
	context []byte

	w0, w1 *big.Int // w1 is prover only
	l      point    // verifier only

	secret    *big.Int
	own, peer []byte

	ka, ke, kcA, kcB []byte

	step step
	rand io.Reader
}

// NewProver returns the commissioner side. Identities are empty as PASE
// binds the run through context instead.
func NewProver(context, w0, w1 []byte) (*Party, error) {
	if len(w0) != ScalarSize || len(w1) != ScalarSize {
		return nil, ErrInvalidScalar
	}
	return &Party{
		prover:  true,
		context: append([]byte(nil), context...),
		w0:      new(big.Int).SetBytes(w0),
		w1:      new(big.Int).SetBytes(w1),
		rand:    rand.Reader,
	}, nil
}

// NewVerifier returns the commissionee side.
func NewVerifier(context, w0, l []byte) (*Party, error) {
	if len(w0) != ScalarSize {
		return nil, ErrInvalidScalar
	}
	lp, err := parsePoint(l)
	if err != nil {
		return nil, err
	}
	return &Party{
		context: append([]byte(nil), context...),
		w0:      new(big.Int).SetBytes(w0),
		l:       lp,
		rand:    rand.Reader,
	}, nil
}

// SetRandom replaces the scalar source, for deterministic tests.
func (p *Party) SetRandom(r io.Reader) { p.rand = r }

// Share picks the ephemeral scalar and returns this side's public share.
func (p *Party) Share() ([]byte, error) {
	if p.step != stepStart {
		return nil, ErrInvalidState
	}
	k, err := randomScalar(p.rand)
	if err != nil {
		return nil, err
	}
	blind := pointN
	if p.prover {
		blind = pointM
	}
	p.secret = k
	p.own = baseMul(k).add(blind.mul(p.w0)).bytes()
	p.step = stepShared
	return append([]byte(nil), p.own...), nil
}

// Finish consumes the peer share and derives the session keys.
func (p *Party) Finish(peerShare []byte) error {
	if p.step != stepShared {
		return ErrInvalidState
	}
	peer, err := parsePoint(peerShare)
	if err != nil {
		return err
	}
	var z, v point
	if p.prover {
		unblinded := peer.sub(pointN.mul(p.w0))
		z, v = unblinded.mul(p.secret), unblinded.mul(p.w1)
	} else {
		unblinded := peer.sub(pointM.mul(p.w0))
		z, v = unblinded.mul(p.secret), p.l.mul(p.secret)
	}
	p.peer = append([]byte(nil), peerShare...)

	x, y := p.own, p.peer
	if !p.prover {
		x, y = y, x
	}
	w0 := make([]byte, ScalarSize)
	p.w0.FillBytes(w0)

	var tt []byte
	for _, part := range [][]byte{p.context, nil, nil, encodedM, encodedN, x, y, z.bytes(), v.bytes(), w0} {
		tt = binary.LittleEndian.AppendUint64(tt, uint64(len(part)))
		tt = append(tt, part...)
	}
	kae := crypto.SHA256(tt)
	p.ka, p.ke = kae[:KeySize], kae[KeySize:]

	kc, err := crypto.HKDFSHA256(p.ka, nil, []byte("ConfirmationKeys"), 2*KeySize)
	if err != nil {
		return err
	}
	p.kcA, p.kcB = kc[:KeySize], kc[KeySize:]
	p.step = stepKeyed
	return nil
}

// Confirmation returns the key confirmation MAC over the peer share.
func (p *Party) Confirmation() ([]byte, error) {
	if p.step < stepKeyed {
		return nil, ErrInvalidState
	}
	key := p.kcB
	if p.prover {
		key = p.kcA
	}
	return crypto.HMACSHA256(key, p.peer), nil
}

// VerifyConfirmation checks the peer's confirmation MAC over our share.
func (p *Party) VerifyConfirmation(mac []byte) error {
	if p.step < stepKeyed {
		return ErrInvalidState
	}
	key := p.kcA
	if p.prover {
		key = p.kcB
	}
	if !crypto.HMACEqual(crypto.HMACSHA256(key, p.own), mac) {
		return ErrConfirmationFailed
	}
	p.step = stepConfirmed
	return nil
}

// SharedSecret returns Ke once the peer's confirmation has been verified.
func (p *Party) SharedSecret() ([]byte, error) {
	if p.step != stepConfirmed {
		return nil, ErrInvalidState
	}
	return append([]byte(nil), p.ke...), nil
}

func randomScalar(r io.Reader) (*big.Int, error) {
	n := curve.Params().N
	b := make([]byte, ScalarSize)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		k := new(big.Int).SetBytes(b)
		if k.Sign() > 0 && k.Cmp(n) < 0 {
			return k, nil
		}
	}
}
