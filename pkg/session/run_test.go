package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/peerlink/internal/events"
	"github.com/rescp17/peerlink/internal/testutil"
	"github.com/rescp17/peerlink/pkg/handshake"
	webrtcPkg "github.com/rescp17/peerlink/pkg/webrtc"
)

func loopbackConfig(t *testing.T, role handshake.Role) Config {
	t.Helper()
	config := testConfig(t, role)
	config.WebRTC = webrtcPkg.Config{LocalOnly: true, IncludeLoopback: true}
	return config
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(testutil.CITimeout(waitTimeout)):
		t.Fatal("session did not stop")
		return nil
	}
}

func TestRunOverLoopback(t *testing.T) {
	testutil.SkipWithoutNetwork(t)
	path, data := writeRandomFile(t, "report.bin", 1024*1024)

	offerLines := make(chan string, 4)
	answerLines := make(chan string, 4)
	offerEvents := newRelayRecorder(answerLines)
	answerEvents := newRelayRecorder(offerLines)

	offerConfig := loopbackConfig(t, handshake.Initiator)
	offerConfig.FilePath = path
	answerConfig := loopbackConfig(t, handshake.Responder)

	offerer := New(offerConfig, offerLines, offerEvents.ch)
	answerer := New(answerConfig, answerLines, answerEvents.ch)

	timeout := testutil.CITimeout(30 * time.Second)
	offerCtx, cancelOffer := context.WithTimeout(context.Background(), timeout)
	defer cancelOffer()
	answerCtx, cancelAnswer := context.WithTimeout(context.Background(), timeout)
	defer cancelAnswer()

	offerDone := make(chan error, 1)
	answerDone := make(chan error, 1)
	go func() { offerDone <- offerer.Run(offerCtx) }()
	go func() { answerDone <- answerer.Run(answerCtx) }()

	offerEvents.waitFor(t, "offer published", func(msg events.Msg) bool {
		d, ok := msg.(events.DescriptorMsg)
		return ok && d.Type == "offer"
	})
	answerEvents.waitFor(t, "greeting from offerer", chatFrom(DefaultGreeting))
	offerEvents.waitFor(t, "greeting from answerer", chatFrom(DefaultGreeting))
	answerEvents.waitFor(t, "incoming transfer complete", completed(events.Incoming))

	assert.Equal(t, StateOpen, offerer.State())
	assert.Equal(t, StateOpen, answerer.State())

	got, err := os.ReadFile(filepath.Join(answerConfig.Transfer.OutputDir, "received_report.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	cancelOffer()
	assert.NoError(t, waitRun(t, offerDone))
	assert.ErrorIs(t, waitRun(t, answerDone), ErrTransportClosed)
	assert.Equal(t, StateClosed, offerer.State())
	assert.Equal(t, StateClosed, answerer.State())
}
