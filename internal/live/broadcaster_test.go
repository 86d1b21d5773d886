package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
	"github.com/JakeFAU/seo-brief-automator/internal/progress"
)

type staticSource struct {
	snap pipeline.StatusSnapshot
}

func (s staticSource) Status() pipeline.StatusSnapshot {
	return s.snap
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestBroadcasterSendsSnapshotThenEvents(t *testing.T) {
	t.Parallel()

	state := brief.NewJobState()
	state.RunID = "run-1"
	state.SetStep(brief.StepSERPComplete)
	source := staticSource{snap: pipeline.StatusSnapshot{
		JobState:  state,
		APIStatus: brief.APIStatus{MaxRequests: 200},
	}}
	b := NewBroadcaster(source, nil, nil)
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	first := readMessage(t, conn)
	require.Equal(t, "snapshot", first.Type)
	require.Equal(t, "run-1", first.Status.RunID)
	require.Equal(t, 25, first.Status.Progress)
	require.Equal(t, 200, first.Status.APIStatus.MaxRequests)

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	err := b.Consume(context.Background(), []progress.Event{{
		RunID: "run-1", TS: time.Now(), Kind: progress.KindStageDone, Stage: 1,
		Step: "serp_complete", Progress: 25, Dur: 1500 * time.Millisecond,
	}})
	require.NoError(t, err)

	second := readMessage(t, conn)
	require.Equal(t, "event", second.Type)
	require.NotNil(t, second.Event)
	require.Equal(t, "STAGE_DONE", second.Event.Kind)
	require.Equal(t, int64(1500), second.Event.DurationMS)
	require.Equal(t, brief.StepSERPComplete, second.Status.Step)
}

func TestBroadcasterCloseDisconnectsClients(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(staticSource{snap: pipeline.StatusSnapshot{JobState: brief.NewJobState()}}, nil, nil)
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	_ = readMessage(t, conn)
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close(context.Background()))
	require.Equal(t, 0, b.ClientCount())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestConsumeWithoutClientsIsNoop(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(staticSource{}, nil, nil)
	require.NoError(t, b.Consume(context.Background(), nil))
	require.NoError(t, b.Consume(context.Background(), []progress.Event{{RunID: "r", Kind: progress.KindRunReset}}))
}
