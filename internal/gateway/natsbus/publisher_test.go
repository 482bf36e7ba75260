package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/internal/council"
)

func startTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewBus(-1, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus
}

func TestPublisher_FansOutSessionEvents(t *testing.T) {
	bus := startTestBus(t)
	pub, err := Connect(bus.ClientURL())
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	type got struct {
		session string
		ev      council.RawEvent
	}
	received := make(chan got, 4)
	_, err = pub.Subscribe("*", func(sessionID string, ev council.RawEvent) {
		received <- got{sessionID, ev}
	})
	require.NoError(t, err)
	require.NoError(t, pub.Flush())

	require.NoError(t, pub.Publish(context.Background(), "abc-123", council.MemberStatusEvent("compound-beta", council.StatusResearching)))
	require.NoError(t, pub.Flush())

	select {
	case g := <-received:
		assert.Equal(t, "abc-123", g.session)
		assert.Equal(t, council.EventMemberStatus, g.ev.Type)
		var d council.MemberStatusData
		require.NoError(t, g.ev.Decode(&d))
		assert.Equal(t, "compound-beta", d.MemberID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPublisher_AsControllerSink(t *testing.T) {
	bus := startTestBus(t)
	pub, err := Connect(bus.ClientURL())
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	received := make(chan council.RawEvent, 8)
	_, err = pub.Subscribe("s-9", func(_ string, ev council.RawEvent) { received <- ev })
	require.NoError(t, err)
	require.NoError(t, pub.Flush())

	rec := &council.Recorder{}
	em := council.Tee(rec, "s-9", nil, pub)
	require.NoError(t, em.Emit(context.Background(), council.PhaseEvent(council.PhaseSelecting, council.SelectingMessage)))
	require.NoError(t, em.Emit(context.Background(), council.ErrorEvent("boom")))
	require.NoError(t, pub.Flush())

	var types []council.EventType
	for len(types) < 2 {
		select {
		case ev := <-received:
			types = append(types, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout; got %v", types)
		}
	}
	assert.Equal(t, []council.EventType{council.EventPhase, council.EventError}, types)
	assert.Len(t, rec.Events(), 2)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "council.session.x.events", TopicSessionEvents("x"))
	assert.Equal(t, "abc", sessionFromSubject("council.session.abc.events"))
	assert.Equal(t, "", sessionFromSubject("short"))
}
