package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/danmuck/dht_transport/cmd/internal/chatcli"
	"github.com/danmuck/dht_transport/cmd/internal/logcfg"
	"github.com/danmuck/dht_transport/src/message"
	"github.com/danmuck/dht_transport/src/transport"
	logs "github.com/danmuck/smplog"
)

const timeLayout = "2006-01-02 15:04"

// sender numbers messages from 0 and points each one at itself, so every
// message starts its own thread.
type sender struct {
	tr      transport.Transport
	channel string
	user    string
	next    uint64
	now     func() time.Time
}

func (s *sender) send(ctx context.Context, text string) (message.Message, error) {
	m := message.New(s.next, s.next, s.user, text, s.now().Format(timeLayout))
	if err := s.tr.SendMessages(ctx, s.channel, []message.Message{m}); err != nil {
		return m, err
	}
	s.next++
	return m, nil
}

// run sends one message per input line until the input closes. A failed
// send is reported and its id is reused by the next line.
func run(ctx context.Context, r *bufio.Reader, out io.Writer, s *sender) error {
	for {
		text, err := chatcli.Ask(r, "Type text")
		if errors.Is(err, chatcli.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		m, err := s.send(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logs.Errorf(err, "failed to send message %d", m.ID())
			continue
		}
		fmt.Fprintln(out, "Text sent")
	}
}

func main() {
	var opts chatcli.Options
	opts.Register(flag.CommandLine, true)
	flag.Parse()
	logcfg.Configure(opts.LogConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in := chatcli.Reader(os.Stdin)
	if err := opts.Complete(in, true); err != nil {
		logs.Fatalf(err, "missing connection settings")
	}
	tr, err := opts.Dial()
	if err != nil {
		logs.Fatalf(err, "failed to configure transport")
	}
	logs.Infof("sending to channel %q as %s", opts.Channel, opts.User)

	s := &sender{tr: tr, channel: opts.Channel, user: opts.User, now: time.Now}
	if err := run(ctx, in, os.Stdout, s); err != nil && !errors.Is(err, context.Canceled) {
		logs.Fatalf(err, "send loop failed")
	}
}
