package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/internal/domain/collab"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/memory"
)

type dropCounter struct {
	nopMetrics
	dropped atomic.Int32
}

func (m *dropCounter) ReceiverDropped() { m.dropped.Add(1) }

func decodeCode(t *testing.T, raw []byte) collab.CodeData {
	t.Helper()
	var f frame
	require.NoError(t, json.Unmarshal(raw, &f))
	require.Equal(t, "code_update", f.Type)
	var data collab.CodeData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	return data
}

func TestHub_SlowReceiverDroppedWithoutBlockingOthers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := &collab.Mentorship{SessionID: "s-1", MentorID: mentorID, MenteeID: menteeID}
	store.PutMentorship(m)

	metrics := &dropCounter{}
	hub := NewHub(store, store, HubOptions{Config: Config{SendBuffer: 1}, Metrics: metrics})

	// Clients are driven directly; no pumps run, so nothing drains a queue
	// unless the test reads it.
	fast := newClient(hub, nil, mentorID, "s-1")
	require.NoError(t, hub.Join(ctx, fast, m))
	<-fast.send

	stalled := newClient(hub, nil, mentorID, "s-1")
	require.NoError(t, hub.Join(ctx, stalled, m)) // init fills its only slot

	sender := newClient(hub, nil, menteeID, "s-1")
	require.NoError(t, hub.Join(ctx, sender, m))
	<-sender.send
	require.Equal(t, 3, hub.Participants("s-1"))

	done := make(chan struct{})
	go func() {
		hub.Handle(ctx, sender, collab.CodeUpdate{Code: "v1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a full receiver")
	}

	select {
	case raw := <-fast.send:
		assert.Equal(t, "v1", decodeCode(t, raw).Code)
	default:
		t.Fatal("healthy receiver missed the update")
	}

	assert.Equal(t, int32(1), metrics.dropped.Load())
	assert.Equal(t, 2, hub.Participants("s-1"))
	select {
	case <-stalled.done:
	default:
		t.Fatal("stalled receiver was not shut down")
	}

	// Later updates keep flowing to the remaining participant.
	hub.Handle(ctx, sender, collab.CodeUpdate{Code: "v2"})
	assert.Equal(t, "v2", decodeCode(t, <-fast.send).Code)
	assert.Equal(t, int32(1), metrics.dropped.Load())
}

func TestHub_ConcurrentCodeUpdatesLastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	const n = 20

	mentor := env.dial(t, "s-1", mentorID)
	readFrame(t, mentor)
	mentee := env.dial(t, "s-1", menteeID)
	readFrame(t, mentee)

	peers := []struct {
		name string
		conn *websocket.Conn
	}{
		{"mentor", mentor},
		{"mentee", mentee},
	}

	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				err := p.conn.WriteJSON(map[string]any{
					"type": "code_update",
					"data": map[string]string{"code": fmt.Sprintf("%s-%d", p.name, i)},
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	// Each side sees every update of the other, in send order.
	for i, p := range peers {
		from := peers[1-i].name
		for j := 0; j < n; j++ {
			f := readFrame(t, p.conn)
			require.Equal(t, "code_update", f.Type)
			var data collab.CodeData
			require.NoError(t, json.Unmarshal(f.Data, &data))
			assert.Equal(t, fmt.Sprintf("%s-%d", from, j), data.Code)
		}
	}

	st, err := env.store.LoadOrCreate(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Contains(t, []string{"mentor-19", "mentee-19"}, st.Code)

	// A late joiner gets exactly the stored buffer.
	late := env.dial(t, "s-1", mentorID)
	var init collab.InitData
	require.NoError(t, json.Unmarshal(readFrame(t, late).Data, &init))
	assert.Equal(t, st.Code, init.Code)
}
