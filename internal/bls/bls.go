// Package bls wraps the blst BLS12-381 primitive into the operations a
// committee of signers needs from an external crypto library: sign,
// verify, aggregate_signatures, aggregate_public_keys and
// derive_public_key. Signatures are 48-byte compressed G1 points,
// public keys 96-byte compressed G2 points.
package bls

import (
	"crypto/rand"
	"crypto/sha256"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/hash_to_curve"
	"github.com/pkg/errors"
	blst "github.com/supranational/blst/bindings/go"
)

const (
	PrivateKeySize = 32
	SignatureSize  = 48
	PublicKeySize  = 96
)

// GeneratePrivateKey returns a fresh 32-byte private key, generated once
// per unit at construction and held for the unit's lifetime.
func GeneratePrivateKey() ([]byte, error) {
	priv := make([]byte, PrivateKeySize)
	if _, err := rand.Read(priv); err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}
	return priv, nil
}

// DerivePublicKey computes the G2 public key for a private key.
func DerivePublicKey(priv []byte) ([]byte, error) {
	scalar, err := scalarLE(priv)
	if err != nil {
		return nil, err
	}
	gen := blst.P2Generator().ToAffine()
	pk := blst.P2AffinesMult([]*blst.P2Affine{gen}, scalar, 255)
	return pk.ToAffine().Compress(), nil
}

// Sign signs msg with priv, returning a compressed 48-byte G1 signature.
func Sign(priv []byte, msg []byte) ([]byte, error) {
	scalar, err := scalarLE(priv)
	if err != nil {
		return nil, err
	}
	msgG1, err := hashToG1Blst(msg)
	if err != nil {
		return nil, err
	}
	sig := blst.P1AffinesMult([]*blst.P1Affine{msgG1}, scalar, 255)
	return sig.ToAffine().Compress(), nil
}

// Verify checks that sig is a valid signature over msg under pk.
func Verify(sig []byte, msg []byte, pk []byte) (bool, error) {
	g1Sig := new(blst.P1Affine).Uncompress(sig)
	if g1Sig == nil {
		return false, errors.New("failed to uncompress signature")
	}
	if !g1Sig.SigValidate(true) {
		return false, errors.New("signature failed subgroup/infinity validation")
	}

	g2Pk := new(blst.P2Affine).Uncompress(pk)
	if g2Pk == nil {
		return false, errors.New("failed to uncompress public key")
	}
	if !g2Pk.KeyValidate() {
		return false, errors.New("public key failed subgroup/identity validation")
	}

	msgG1, err := hashToG1Blst(msg)
	if err != nil {
		return false, err
	}

	g2Gen := blst.P2Generator().ToAffine()
	negPk := new(blst.P2).Sub(g2Pk).ToAffine()

	// e(sig, G2_generator) * e(H(msg), -pk) == 1
	ml := blst.Fp12MillerLoopN([]blst.P2Affine{*g2Gen, *negPk}, []blst.P1Affine{*g1Sig, *msgG1})
	ml.FinalExp()
	one := blst.Fp12One()
	return ml.Equals(&one), nil
}

// AggregateSignatures collapses individual G1 signatures into a single
// constant-size signature by point addition. Input order does not affect
// the result under this curve's group law.
func AggregateSignatures(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, errors.New("no signatures to aggregate")
	}
	points := make([]*blst.P1Affine, 0, len(sigs))
	for i, s := range sigs {
		p := new(blst.P1Affine).Uncompress(s)
		if p == nil {
			return nil, errors.Errorf("failed to uncompress signature at index %d", i)
		}
		if !p.SigValidate(true) {
			return nil, errors.Errorf("signature at index %d failed validation", i)
		}
		points = append(points, p)
	}
	agg := blst.P1AffinesAdd(points)
	return agg.ToAffine().Compress(), nil
}

// AggregatePublicKeys collapses individual G2 public keys into a single
// aggregated public key by point addition.
func AggregatePublicKeys(pks [][]byte) ([]byte, error) {
	if len(pks) == 0 {
		return nil, errors.New("no public keys to aggregate")
	}
	points := make([]*blst.P2Affine, 0, len(pks))
	for i, k := range pks {
		p := new(blst.P2Affine).Uncompress(k)
		if p == nil {
			return nil, errors.Errorf("failed to uncompress public key at index %d", i)
		}
		if !p.KeyValidate() {
			return nil, errors.Errorf("public key at index %d failed validation", i)
		}
		points = append(points, p)
	}
	agg := blst.P2AffinesAdd(points)
	return agg.ToAffine().Compress(), nil
}

// scalarLE reduces a 32-byte private key into the scalar field and
// returns its little-endian encoding, the byte order blst's MSM helpers
// expect (gnark-crypto's fr.Element.Bytes is big-endian).
func scalarLE(priv []byte) ([]byte, error) {
	if len(priv) != PrivateKeySize {
		return nil, errors.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(priv))
	}
	var s fr.Element
	s.SetBytes(priv)
	le := s.Bytes()
	for i := 0; i < 16; i++ {
		le[i], le[31-i] = le[31-i], le[i]
	}
	return le[:], nil
}

// hashToG1Blst hashes msg to a G1 point and returns it as a blst affine
// point, bridging gnark-crypto's curve-mapping implementation (used for
// determinism/RFC9380 alignment) into blst's point types.
func hashToG1Blst(msg []byte) (*blst.P1Affine, error) {
	digest := sha256.Sum256(msg)
	g1, err := hashToG1(digest[:])
	if err != nil {
		return nil, err
	}
	b := g1.Bytes()
	p := new(blst.P1Affine).Uncompress(b[:])
	if p == nil {
		return nil, errors.New("failed to uncompress hashed message point")
	}
	return p, nil
}

// hashToG1 maps a 32-byte hash to a G1 point via a single-field SWU map
// followed by isogeny and cofactor clearing, mirroring EIP-2537's
// MAP_FP_TO_G1.
func hashToG1(hash []byte) (bls12381.G1Affine, error) {
	var out bls12381.G1Affine
	if len(hash) != 32 {
		return out, errors.Errorf("message hash must be 32 bytes, got %d", len(hash))
	}
	var be [48]byte
	copy(be[48-32:], hash)
	var u fp.Element
	u.SetBytes(be[:])
	p := bls12381.MapToCurve1(&u)
	hash_to_curve.G1Isogeny(&p.X, &p.Y)
	out.ClearCofactor(&p)
	return out, nil
}
