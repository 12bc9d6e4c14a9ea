package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rescp17/peerlink/internal/events"
	"github.com/rescp17/peerlink/pkg/chat"
	"github.com/rescp17/peerlink/pkg/concurrency"
	"github.com/rescp17/peerlink/pkg/framer"
	"github.com/rescp17/peerlink/pkg/transfer"
)

// serve runs the open-channel tasks: the dispatch loop, chat input and any
// outgoing transfer. It returns once they have all stopped.
func (s *Session) serve(ctx context.Context, f *framer.Framer) error {
	g, ctx := errgroup.WithContext(ctx)

	receiver := transfer.NewReceiver(s.config.Transfer, s.uiMessages)
	sender := transfer.NewSender(f, s.config.Transfer, s.uiMessages)
	guard := concurrency.NewConcurrencyGuard()

	var transfers sync.WaitGroup
	sendFile := func(path string) {
		// fast path, the guard below is authoritative
		if guard.Busy() {
			s.reportSend(path, concurrency.ErrBusy)
			return
		}
		transfers.Add(1)
		go func() {
			defer transfers.Done()
			err := guard.ExecuteWithContext(ctx, func(ctx context.Context) error {
				return sender.SendFile(ctx, path)
			})
			s.reportSend(path, err)
		}()
	}
	chatSession := chat.New(f, s.uiMessages, chat.WithFileSender(sendFile))

	g.Go(func() error {
		err := f.Run(ctx, func(u framer.Unit) {
			s.dispatch(u, receiver, chatSession)
		})
		return transportErr(err)
	})
	g.Go(func() error {
		return transportErr(chatSession.Run(ctx, s.lines))
	})
	g.Go(func() error {
		select {
		case <-f.Done():
			return ErrTransportClosed
		case <-ctx.Done():
			return nil
		}
	})

	if s.config.Greeting != "" {
		if err := f.SendChat(s.config.Greeting); err != nil {
			s.logger.Warn("Failed to send greeting", "error", err)
		}
	}
	if s.config.FilePath != "" {
		if info, err := os.Stat(s.config.FilePath); err != nil || !info.Mode().IsRegular() {
			s.logger.Warn("Not sending file on open", "path", s.config.FilePath, "error", err)
			events.Emit(s.uiMessages, events.ErrorMsg{Err: fmt.Errorf("%s is not a readable file, not sending it", s.config.FilePath)})
		} else {
			sendFile(s.config.FilePath)
		}
	}

	err := g.Wait()
	transfers.Wait()
	f.Close()
	// the dispatch loop has stopped, so nothing else touches the receiver
	receiver.Abort()
	return err
}

// dispatch is the single point where inbound units are acted on.
func (s *Session) dispatch(u framer.Unit, receiver *transfer.Receiver, chatSession *chat.Session) {
	switch u := u.(type) {
	case framer.Chunk:
		if err := receiver.HandleChunk(u); err != nil {
			s.logger.Debug("Chunk discarded", "bytes", len(u), "error", err)
		}
	case framer.Control:
		if err := receiver.HandleControl(u.ControlMessage); err != nil {
			s.logger.Debug("Announcement discarded", "error", err)
		}
	case framer.Chat:
		chatSession.Receive(string(u))
	}
}

func (s *Session) reportSend(path string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, framer.ErrChannelClosed):
		s.logger.Info("Transfer stopped", "path", path, "error", err)
	case errors.Is(err, concurrency.ErrBusy):
		events.Emit(s.uiMessages, events.ErrorMsg{Err: fmt.Errorf("cannot send %s: %w", path, err)})
	default:
		s.logger.Error("Transfer failed", "path", path, "error", err)
		events.Emit(s.uiMessages, events.ErrorMsg{Err: err})
	}
}

func transportErr(err error) error {
	if errors.Is(err, framer.ErrChannelClosed) {
		return ErrTransportClosed
	}
	return err
}
