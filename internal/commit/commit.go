// Package commit defines the Commit value exchanged between units and
// the hub, and the pure aggregation helper units call once a slot's
// collection reaches the supermajority threshold.
package commit

import (
	"fmt"

	"github.com/gonka-ai/committee-signer/internal/bls"
	"github.com/pkg/errors"
)

// Type is the closed sum type a Commit carries: a certification that a
// client message was acknowledged, or that none was.
type Type int

const (
	Precommit Type = iota
	Noncommit
)

func (t Type) String() string {
	switch t {
	case Precommit:
		return "PRECOMMIT"
	case Noncommit:
		return "NONCOMMIT"
	default:
		return "UNKNOWN"
	}
}

// Commit is the immutable-by-convention value passed by value through
// the inbound/outbound channels. I is the slot index the commit is
// about; J is the last-finalized slot index known to the emitter.
type Commit struct {
	Typ        Type
	I          uint32
	J          uint32
	Msg        []byte
	PublicKey  []byte
	Signature  []byte
	Aggregated bool
}

// NoncommitMessage builds the deterministic message bytes a phase-3
// boundary noncommit signs: "noncommit(j+1, i)", so honest units agree
// on the same bytes without coordination.
func NoncommitMessage(j, i uint32) []byte {
	return []byte(fmt.Sprintf("noncommit(%d, %d)", j+1, i))
}

// Aggregate combines the signatures and public keys of commits into a
// single supermajority signature/key pair. Order of inputs must not
// affect the resulting verification outcome, but insertion order is
// preserved for determinism of the resulting bytes.
func Aggregate(commits []Commit) (sig []byte, pk []byte, err error) {
	if len(commits) == 0 {
		return nil, nil, errors.New("cannot aggregate an empty commit set")
	}
	sigs := make([][]byte, len(commits))
	pks := make([][]byte, len(commits))
	for i, c := range commits {
		sigs[i] = c.Signature
		pks[i] = c.PublicKey
	}
	sig, err = bls.AggregateSignatures(sigs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to aggregate signatures")
	}
	pk, err = bls.AggregatePublicKeys(pks)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to aggregate public keys")
	}
	return sig, pk, nil
}
