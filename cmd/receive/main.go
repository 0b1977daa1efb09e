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
	"strconv"

	"github.com/danmuck/dht_transport/cmd/internal/chatcli"
	"github.com/danmuck/dht_transport/cmd/internal/logcfg"
	"github.com/danmuck/dht_transport/src/message"
	"github.com/danmuck/dht_transport/src/transport"
	logs "github.com/danmuck/smplog"
)

// run answers each parent id read from r with the replies stored under it.
func run(ctx context.Context, r *bufio.Reader, out io.Writer, tr transport.Transport, channel string) error {
	for {
		line, err := chatcli.Ask(r, "Type parent_id")
		if errors.Is(err, chatcli.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		parent, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			logs.Warnf("%q is not a message id", line)
			continue
		}

		msgs, err := tr.ReceiveMessages(ctx, channel, parent)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logs.Errorf(err, "failed to receive replies to %d", parent)
			continue
		}
		if len(msgs) == 0 {
			fmt.Fprintln(out, "No messages")
			continue
		}
		for _, m := range message.SortByID(msgs) {
			fmt.Fprintf(out, "%s %s: %s\n", m.Time(), m.User(), m.Text())
		}
	}
}

func main() {
	var opts chatcli.Options
	opts.Register(flag.CommandLine, false)
	flag.Parse()
	logcfg.Configure(opts.LogConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in := chatcli.Reader(os.Stdin)
	if err := opts.Complete(in, false); err != nil {
		logs.Fatalf(err, "missing connection settings")
	}
	tr, err := opts.Dial()
	if err != nil {
		logs.Fatalf(err, "failed to configure transport")
	}
	logs.Infof("reading channel %q", opts.Channel)

	if err := run(ctx, in, os.Stdout, tr, opts.Channel); err != nil && !errors.Is(err, context.Canceled) {
		logs.Fatalf(err, "receive loop failed")
	}
}
