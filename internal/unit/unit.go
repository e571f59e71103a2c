// Package unit implements the per-unit slot state machine: the single
// actor that consumes slot timers, inbound commits and control commands,
// and emits individual or aggregated commits on its outbound channel.
package unit

import (
	"context"
	"time"

	"github.com/gonka-ai/committee-signer/internal/bls"
	"github.com/gonka-ai/committee-signer/internal/commit"
	"github.com/gonka-ai/committee-signer/internal/config"
	"github.com/gonka-ai/committee-signer/internal/logging"
	"github.com/gonka-ai/committee-signer/internal/slot"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Command is a control-channel instruction from the enclosing process.
type Command int

const (
	Terminate Command = iota
)

// Unit is an independent signing actor holding its own key pair and
// slot state. It owns Slot exclusively; no other goroutine may touch it.
type Unit struct {
	ID   uuid.UUID
	Slot *slot.Info

	priv []byte
	pub  []byte

	numUnits       int
	slotDuration   time.Duration
	phase1Duration time.Duration
	phase2Duration time.Duration

	inbound  <-chan commit.Commit
	outbound chan<- commit.Commit
	control  <-chan Command

	log *logging.Logger
}

// New constructs a Unit with a fresh key pair and STOP-phase slot state.
// Configuration errors are fatal at construction: the unit is never
// started.
func New(cfg config.Config, inbound <-chan commit.Commit, outbound chan<- commit.Commit, control <-chan Command) (*Unit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid committee configuration")
	}

	priv, err := bls.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate unit private key")
	}
	pub, err := bls.DerivePublicKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive unit public key")
	}

	return &Unit{
		ID:             uuid.New(),
		Slot:           slot.New(),
		priv:           priv,
		pub:            pub,
		numUnits:       cfg.Committee.NumUnits,
		slotDuration:   time.Duration(cfg.Committee.SlotDurationSeconds) * time.Second,
		phase1Duration: time.Duration(cfg.Committee.Phase1DurationSeconds) * time.Second,
		phase2Duration: time.Duration(cfg.Committee.Phase2DurationSeconds) * time.Second,
		inbound:        inbound,
		outbound:       outbound,
		control:        control,
		log:            logging.New(false),
	}, nil
}

// PublicKey returns this unit's derived public key.
func (u *Unit) PublicKey() []byte { return u.pub }

// Run drives the unit's event loop until the context is cancelled, the
// control channel delivers TERMINATE (or is closed), or a fatal error
// occurs (full outbound channel, a cryptographic failure). It promotes
// the slot to FIRST on entry, per the state machine's initial transition.
func (u *Unit) Run(ctx context.Context) error {
	u.Slot.Phase = slot.First

	slotTicker := time.NewTicker(u.slotDuration)
	defer slotTicker.Stop()

	phase2Timer := time.NewTimer(u.phase1Duration)
	defer phase2Timer.Stop()

	phase3Timer := time.NewTimer(u.phase1Duration + u.phase2Duration)
	defer phase3Timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-slotTicker.C:
			u.Slot.Next()
			resetTimer(phase2Timer, u.phase1Duration)
			resetTimer(phase3Timer, u.phase1Duration+u.phase2Duration)
			u.log.Debug("slot boundary", logging.Slot, "unit", u.ID, "i", u.Slot.I)

		case <-phase2Timer.C:
			u.Slot.Phase = slot.Second
			u.log.Debug("phase transition", logging.Slot, "unit", u.ID, "i", u.Slot.I, "phase", u.Slot.Phase.String())

		case <-phase3Timer.C:
			u.Slot.Phase = slot.Third
			u.log.Debug("phase transition", logging.Slot, "unit", u.ID, "i", u.Slot.I, "phase", u.Slot.Phase.String())
			if err := u.emitPhase3Noncommit(); err != nil {
				return err
			}

		case c, ok := <-u.inbound:
			if !ok {
				// Inbound closed: keep ticking and emitting, just stop
				// selecting on a channel that will never yield again.
				u.inbound = nil
				continue
			}
			if err := u.Process(c); err != nil {
				return err
			}

		case cmd, ok := <-u.control:
			if !ok || cmd == Terminate {
				return nil
			}
		}
	}
}

// Process dispatches an inbound commit by the unit's current phase and
// the commit's type: behavior is a function of both, and nothing happens
// once this slot has already been aggregated. Commit delivery order is
// arbitrary, so a non-aggregated commit stamped for a slot other than
// the one this unit is currently in is a stale or premature arrival and
// is dropped with no state change; an aggregated commit still adopts
// regardless of index, since that's how a unit catches up to the rest
// of the committee.
func (u *Unit) Process(c commit.Commit) error {
	si := u.Slot
	if si.Aggregated {
		return nil
	}

	if !c.Aggregated && c.I != si.I {
		return nil
	}

	switch si.Phase {
	case slot.Stop:
		return nil

	case slot.First:
		if c.Aggregated {
			u.adopt(c)
			return nil
		}
		if c.Typ == commit.Precommit {
			return u.signAndCollect(c, &si.Precommits)
		}
		return nil // NONCOMMIT ignored in FIRST

	case slot.Second:
		if c.Aggregated {
			u.adopt(c)
			return nil
		}
		switch c.Typ {
		case commit.Precommit:
			return u.signAndCollect(c, &si.Precommits)
		case commit.Noncommit:
			return u.signAndCollect(c, &si.Noncommits)
		}
		return nil

	case slot.Third:
		if c.Aggregated {
			u.adopt(c)
			return nil
		}
		if c.Typ == commit.Noncommit {
			return u.signAndCollect(c, &si.Noncommits)
		}
		return nil // PRECOMMIT ignored in THIRD
	}
	return nil
}

// adopt applies an incoming aggregated commit. The caller's guard above
// already ensures this slot hasn't been aggregated yet, and flipping
// Aggregated here stops any further processing for the rest of the slot.
func (u *Unit) adopt(c commit.Commit) {
	u.Slot.Aggregated = true
	u.Slot.I = c.I
	u.Slot.J = c.J
}

// signAndCollect signs c if this unit hasn't signed anything this slot
// yet, overwriting c's signature/public_key with its own and emitting
// that individual commit; otherwise c is left as received. Either way
// the resulting commit is appended to the phase's collection and the
// collection is checked against the aggregation threshold.
func (u *Unit) signAndCollect(c commit.Commit, collection *[]commit.Commit) error {
	if !u.Slot.Signed {
		sig, err := bls.Sign(u.priv, c.Msg)
		if err != nil {
			return errors.Wrap(err, "failed to sign commit")
		}
		c.Signature = sig
		c.PublicKey = u.pub
		u.Slot.Signed = true
		if err := u.emit(c); err != nil {
			return err
		}
	}

	*collection = append(*collection, c)
	return u.aggregateIfSupermajority(collection, c.Typ)
}

// aggregateIfSupermajority collapses collection into a single aggregated
// commit once it reaches the supermajority threshold, emits it, and
// marks the slot aggregated. Aggregated flips on the first call that
// crosses the threshold, and every caller upstream already refuses to
// process further commits once that flag is set, so this can fire at
// most once per slot.
func (u *Unit) aggregateIfSupermajority(collection *[]commit.Commit, typ commit.Type) error {
	threshold := slot.Supermajority(u.numUnits)
	if len(*collection) < threshold {
		return nil
	}

	sig, pk, err := commit.Aggregate(*collection)
	if err != nil {
		return errors.Wrap(err, "failed to aggregate commits")
	}

	agg := commit.Commit{
		Typ:        typ,
		I:          u.Slot.I,
		J:          u.Slot.J,
		Msg:        (*collection)[0].Msg,
		PublicKey:  pk,
		Signature:  sig,
		Aggregated: true,
	}

	u.Slot.Aggregated = true
	u.Slot.J = u.Slot.I

	return u.emit(agg)
}

// emitPhase3Noncommit constructs and emits the phase-3 boundary
// self-noncommit for (j+1, i). Gated on aggregated=false (an unfinalized
// slot still needs a chance to converge on NONCOMMIT) and on signed=false
// (a unit that already signed this slot never signs again).
func (u *Unit) emitPhase3Noncommit() error {
	if u.Slot.Aggregated || u.Slot.Signed {
		return nil
	}

	msg := commit.NoncommitMessage(u.Slot.J, u.Slot.I)
	sig, err := bls.Sign(u.priv, msg)
	if err != nil {
		return errors.Wrap(err, "failed to sign phase-3 noncommit")
	}

	u.Slot.Signed = true
	return u.emit(commit.Commit{
		Typ:       commit.Noncommit,
		I:         u.Slot.I,
		J:         u.Slot.J,
		Msg:       msg,
		PublicKey: u.pub,
		Signature: sig,
	})
}

// emit sends c on the outbound channel. A full channel is treated as
// fatal: the hub is assumed to drain promptly, so a full channel is an
// operator sizing concern, not something the actor retries around. A
// closed outbound channel is fatal too; Go makes a send on a closed
// channel panic rather than fall through to the select's default case,
// so that panic is recovered here and turned into the same kind of
// returned error instead of taking the unit down uncontrolled.
func (u *Unit) emit(c commit.Commit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("outbound channel closed: %v", r)
		}
	}()

	select {
	case u.outbound <- c:
		return nil
	default:
		return errors.New("outbound channel full")
	}
}

// resetTimer safely reschedules a timer that may or may not have
// already fired, per the standard library's documented Timer.Reset idiom.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
