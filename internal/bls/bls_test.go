package bls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)
	pub, err := DerivePublicKey(priv)
	require.NoError(t, err)
	assert.Len(t, pub, PublicKeySize)

	msg := []byte("hello")
	sig, err := Sign(priv, msg)
	require.NoError(t, err)
	assert.Len(t, sig, SignatureSize)

	ok, err := Verify(sig, msg, pub)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)
	pub, err := DerivePublicKey(priv)
	require.NoError(t, err)

	sig, err := Sign(priv, []byte("hello"))
	require.NoError(t, err)

	ok, err := Verify(sig, []byte("goodbye"), pub)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAggregateSignaturesAndVerify(t *testing.T) {
	msg := []byte("committee message")
	const n = 4

	var sigs [][]byte
	var pks [][]byte
	for i := 0; i < n; i++ {
		priv, err := GeneratePrivateKey()
		require.NoError(t, err)
		pub, err := DerivePublicKey(priv)
		require.NoError(t, err)
		sig, err := Sign(priv, msg)
		require.NoError(t, err)

		sigs = append(sigs, sig)
		pks = append(pks, pub)
	}

	aggSig, err := AggregateSignatures(sigs)
	require.NoError(t, err)
	aggPk, err := AggregatePublicKeys(pks)
	require.NoError(t, err)

	ok, err := Verify(aggSig, msg, aggPk)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAggregateEmptyFails(t *testing.T) {
	_, err := AggregateSignatures(nil)
	assert.Error(t, err)
	_, err = AggregatePublicKeys(nil)
	assert.Error(t, err)
}

func TestGeneratePrivateKeyIsUnique(t *testing.T) {
	a, err := GeneratePrivateKey()
	require.NoError(t, err)
	b, err := GeneratePrivateKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
