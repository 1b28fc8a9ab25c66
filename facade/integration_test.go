package facade_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netgrove/threadws/api"
	"github.com/netgrove/threadws/facade"
	"github.com/netgrove/threadws/server"
)

// TestFacadeAgainstUpgradePipeline drives the whole path from caller through
// facade worker, dialing engine, TCP listener and handshake pipeline to an
// accepted peer, and messages back the other way.
func TestFacadeAgainstUpgradePipeline(t *testing.T) {
	s := server.New("127.0.0.1:0")
	require.NoError(t, s.Listen())
	defer s.Close()

	received := make(chan string, 4)
	states := make(chan api.ConnState, 16)
	f := facade.New(facade.Listener{
		TextReceived: func(msg string) { received <- msg },
		StateChanged: func(st api.ConnState) { states <- st },
	})
	defer f.Shutdown()

	f.Open("ws://" + s.Addr().String() + "/live")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := s.Accept(ctx)
	require.NoError(t, err)
	peer.SetEvents(&api.EngineEvents{
		TextMessage: func(msg string) {
			_, _ = peer.SendText("ack:" + msg)
		},
	})
	peer.Start()

	waitFor(t, states, api.Open)
	require.NoError(t, f.SendText("order-1"))

	select {
	case msg := <-received:
		assert.Equal(t, "ack:order-1", msg)
	case <-ctx.Done():
		t.Fatal("no reply from the accepted peer")
	}

	f.Close(api.CloseNormal, "done")
	waitFor(t, states, api.Closed)
}

func waitFor(t *testing.T, states chan api.ConnState, want api.ConnState) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("never observed state %v", want)
		}
	}
}
