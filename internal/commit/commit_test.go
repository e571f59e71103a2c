package commit

import (
	"testing"

	"github.com/gonka-ai/committee-signer/internal/bls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoncommitMessage(t *testing.T) {
	assert.Equal(t, []byte("noncommit(1, 0)"), NoncommitMessage(0, 0))
	assert.Equal(t, []byte("noncommit(6, 5)"), NoncommitMessage(5, 5))
}

func TestAggregate(t *testing.T) {
	msg := []byte("hello")
	const n = 3

	var commits []Commit
	for i := 0; i < n; i++ {
		priv, err := bls.GeneratePrivateKey()
		require.NoError(t, err)
		pub, err := bls.DerivePublicKey(priv)
		require.NoError(t, err)
		sig, err := bls.Sign(priv, msg)
		require.NoError(t, err)

		commits = append(commits, Commit{
			Typ:       Precommit,
			I:         1,
			Msg:       msg,
			PublicKey: pub,
			Signature: sig,
		})
	}

	sig, pk, err := Aggregate(commits)
	require.NoError(t, err)

	ok, err := bls.Verify(sig, msg, pk)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAggregateEmptyFails(t *testing.T) {
	_, _, err := Aggregate(nil)
	assert.Error(t, err)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "PRECOMMIT", Precommit.String())
	assert.Equal(t, "NONCOMMIT", Noncommit.String())
}
