// Package hub implements the fan-out collaborator for a committee: it
// re-broadcasts each unit's outbound commits to every other unit's
// inbound queue, and forwards client-submitted precommits to all units.
// internal/unit only depends on the inbound/outbound channel contract;
// this package is one concrete way to wire it up.
package hub

import (
	"sync"

	"github.com/gonka-ai/committee-signer/internal/commit"
	"github.com/gonka-ai/committee-signer/internal/logging"
	"github.com/pkg/errors"
)

// Hub is the contract a committee of units is wired against. Units never
// import this package directly: cmd/unit constructs a Hub, hands each
// unit its own inbound channel, and relays each unit's outbound channel
// into Publish.
type Hub interface {
	// Register joins a unit to the committee and returns the inbound
	// channel the hub will deliver broadcast commits on.
	Register(unitID string) (<-chan commit.Commit, error)
	// Publish broadcasts a commit from unitID to every other registered
	// unit's inbound channel.
	Publish(unitID string, c commit.Commit) error
	// PublishClientMessage delivers an externally-submitted message (a
	// client precommit) to every registered unit, including the sender.
	PublishClientMessage(c commit.Commit) error
	// Close shuts down the hub and releases its resources.
	Close() error
}

// MemoryHub is an in-process Hub backed by plain Go channels: every
// registered unit gets its own buffered inbound channel, and Publish
// fans a commit out to all channels but the sender's.
type MemoryHub struct {
	mu       sync.RWMutex
	capacity int
	units    map[string]chan commit.Commit
	log      *logging.Logger
}

// NewMemoryHub constructs a MemoryHub whose per-unit inbound channels
// have the given capacity.
func NewMemoryHub(capacity int) *MemoryHub {
	return &MemoryHub{
		capacity: capacity,
		units:    make(map[string]chan commit.Commit),
		log:      logging.New(false),
	}
}

func (h *MemoryHub) Register(unitID string) (<-chan commit.Commit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.units[unitID]; exists {
		return nil, errors.Errorf("unit %q already registered", unitID)
	}
	ch := make(chan commit.Commit, h.capacity)
	h.units[unitID] = ch
	return ch, nil
}

func (h *MemoryHub) Publish(unitID string, c commit.Commit) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.units {
		if id == unitID {
			continue
		}
		if err := h.deliver(id, ch, c); err != nil {
			return err
		}
	}
	return nil
}

func (h *MemoryHub) PublishClientMessage(c commit.Commit) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.units {
		if err := h.deliver(id, ch, c); err != nil {
			return err
		}
	}
	return nil
}

func (h *MemoryHub) deliver(unitID string, ch chan commit.Commit, c commit.Commit) error {
	select {
	case ch <- c:
		return nil
	default:
		h.log.Warn("dropping commit, inbound channel full", logging.Hub, "unit", unitID, "slot", c.I)
		return errors.Errorf("inbound channel for unit %q is full", unitID)
	}
}

func (h *MemoryHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.units {
		close(ch)
		delete(h.units, id)
	}
	return nil
}
