// Package console is the line-oriented operator surface: it turns stdin into a
// stream of lines and renders session events to stdout.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/rescp17/peerlink/internal/events"
	"github.com/rescp17/peerlink/internal/style"
	"github.com/rescp17/peerlink/internal/util"
)

// MaxLineSize bounds a single input line. Encoded descriptors with many
// candidates are several KiB and must fit on one line.
const MaxLineSize = 1 << 20

const (
	eventBuffer   = 32
	fileNameWidth = 24
	sizeWidth     = 10
)

type Console struct {
	in  io.Reader
	out io.Writer

	lines      chan string
	uiMessages chan events.Msg
	readOnce   sync.Once

	bar progress.Model
}

func New(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:         in,
		out:        out,
		lines:      make(chan string),
		uiMessages: make(chan events.Msg, eventBuffer),
		bar:        style.NewProgressBar(),
	}
}

// Lines yields operator input one line at a time. It is closed at end of input.
func (c *Console) Lines() <-chan string {
	c.readOnce.Do(func() { go c.readInput() })
	return c.lines
}

// Events is where session components send operator-facing messages.
func (c *Console) Events() chan<- events.Msg {
	return c.uiMessages
}

func (c *Console) readInput() {
	defer close(c.lines)
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Failed to read operator input", "error", err)
	}
}

// Render writes events until ctx is done, then flushes whatever is still queued.
func (c *Console) Render(ctx context.Context) {
	for {
		select {
		case msg := <-c.uiMessages:
			c.write(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-c.uiMessages:
					c.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (c *Console) write(msg events.Msg) {
	if _, err := fmt.Fprintln(c.out, c.Format(msg)); err != nil {
		slog.Warn("Failed to write to console", "error", err)
	}
}

// Format renders a single event as console text.
func (c *Console) Format(msg events.Msg) string {
	switch msg := msg.(type) {
	case events.StatusMsg:
		return style.StatusStyle.Render(msg.Message)
	case events.ErrorMsg:
		return style.ErrorStyle.Render(fmt.Sprintf("Error: %v", msg.Err))
	case events.PromptMsg:
		return style.PromptStyle.Render(msg.Prompt)
	case events.DescriptorMsg:
		return formatDescriptor(msg)
	case events.ChatMsg:
		return style.PeerLabelStyle.Render(msg.Label+":") + " " + msg.Text
	case events.TransferStartedMsg:
		return formatStarted(msg)
	case events.ProgressMsg:
		return c.formatProgress(msg)
	case events.TransferCompleteMsg:
		return formatComplete(msg)
	default:
		slog.Warn("Unhandled console event", "type", fmt.Sprintf("%T", msg))
		return ""
	}
}

// formatDescriptor prints the descriptor text unstyled so it can be copied verbatim.
func formatDescriptor(msg events.DescriptorMsg) string {
	kind := strings.ToUpper(msg.Type)
	target := "Answer"
	if msg.Type == "answer" {
		target = "Offer"
	}
	header := fmt.Sprintf("=== Your %s (copy and send to the %s peer) ===", kind, target)

	var b strings.Builder
	b.WriteString(style.BannerStyle.Render(header))
	b.WriteByte('\n')
	b.WriteString(msg.Text)
	b.WriteByte('\n')
	b.WriteString(style.BannerStyle.Render(strings.Repeat("=", len(header))))
	return b.String()
}

func formatStarted(msg events.TransferStartedMsg) string {
	name := style.FileNameStyle.Render(msg.FileName)
	size := util.FormatSize(msg.Size)
	if msg.Direction == events.Incoming {
		return fmt.Sprintf("Incoming file: %s (%s), saving as '%s'", name, size, msg.Path)
	}
	return fmt.Sprintf("Sending file '%s' (%s)...", name, size)
}

func (c *Console) formatProgress(msg events.ProgressMsg) string {
	return fmt.Sprintf("  %s %s %s / %s",
		util.PadRight(msg.FileName, fileNameWidth),
		c.bar.ViewAs(util.Percent(msg.Done, msg.Total)),
		util.PadLeft(util.FormatSize(msg.Done), sizeWidth),
		util.FormatSize(msg.Total),
	)
}

func formatComplete(msg events.TransferCompleteMsg) string {
	if msg.Direction == events.Incoming {
		return style.SuccessStyle.Render(fmt.Sprintf("File '%s' received successfully! Saved to %s", msg.FileName, msg.Path))
	}
	return style.SuccessStyle.Render(fmt.Sprintf("File '%s' sent successfully!", msg.FileName))
}
