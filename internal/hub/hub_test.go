package hub

import (
	"testing"

	"github.com/gonka-ai/committee-signer/internal/commit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHub_PublishSkipsSender(t *testing.T) {
	h := NewMemoryHub(4)

	aInbound, err := h.Register("a")
	require.NoError(t, err)
	bInbound, err := h.Register("b")
	require.NoError(t, err)

	c := commit.Commit{Typ: commit.Precommit, I: 1, Msg: []byte("hello")}
	require.NoError(t, h.Publish("a", c))

	select {
	case got := <-bInbound:
		assert.Equal(t, c.Msg, got.Msg)
	default:
		t.Fatal("expected b to receive the broadcast commit")
	}

	assert.Len(t, aInbound, 0, "sender should not receive its own commit back")
}

func TestMemoryHub_PublishClientMessageReachesAll(t *testing.T) {
	h := NewMemoryHub(4)

	aInbound, err := h.Register("a")
	require.NoError(t, err)
	bInbound, err := h.Register("b")
	require.NoError(t, err)

	c := commit.Commit{Typ: commit.Precommit, I: 1, Msg: []byte("from client")}
	require.NoError(t, h.PublishClientMessage(c))

	for _, ch := range []<-chan commit.Commit{aInbound, bInbound} {
		select {
		case got := <-ch:
			assert.Equal(t, c.Msg, got.Msg)
		default:
			t.Fatal("expected both units to receive the client message")
		}
	}
}

func TestMemoryHub_RegisterRejectsDuplicate(t *testing.T) {
	h := NewMemoryHub(4)
	_, err := h.Register("a")
	require.NoError(t, err)
	_, err = h.Register("a")
	assert.Error(t, err)
}

func TestMemoryHub_FullChannelReturnsError(t *testing.T) {
	h := NewMemoryHub(1)
	_, err := h.Register("a")
	require.NoError(t, err)
	_, err = h.Register("b")
	require.NoError(t, err)

	c := commit.Commit{I: 1}
	require.NoError(t, h.Publish("a", c)) // fills b's channel
	assert.Error(t, h.Publish("a", c))    // b's channel is now full
}
