// Package transport carries channel messages over a key-value DHT that only
// offers put(key, value) and getMany(prefix).
//
// Each message is one put under keys.Scheme.Key; a receive is one prefix
// scan under keys.Scheme.Prefix. The DHT is the only place state lives: the
// transport keeps nothing between calls, and every consistency guarantee is
// the DHT's. In particular a put is not guaranteed to be visible to another
// client's getMany right away, and two senders that pick the same message id
// on a channel overwrite (or are refused by) each other as the DHT decides.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/dht_transport/src/keys"
	"github.com/danmuck/dht_transport/src/message"
	logs "github.com/danmuck/smplog"
	"golang.org/x/sync/errgroup"
)

const (
	PutPath     = "/api/v1/put/"
	GetManyPath = "/api/v1/getMany/"

	maxErrorBody    = 4 << 10
	maxResponseBody = 64 << 20
)

// Transport exchanges messages on channels.
type Transport interface {
	// SendMessages writes msgs to channel dest. It stops at the first failure;
	// earlier messages stay written. Nothing is retried.
	SendMessages(ctx context.Context, dest string, msgs []message.Message) error
	// ReceiveMessages returns every message on channel src whose parent id is
	// exactly lastReceived, in the order the DHT returned them.
	ReceiveMessages(ctx context.Context, src string, lastReceived uint64) ([]message.Message, error)
}

var _ Transport = &DHTTransport{}

// keyValuePair is the DHT wire item.
type keyValuePair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// pendingPut is one encoded message of a send batch.
type pendingPut struct {
	index int
	id    uint64
	item  keyValuePair
}

// DHTTransport talks to a DHT node over its HTTP API.
type DHTTransport struct {
	baseURL     string
	client      *http.Client
	coder       message.Coder
	scheme      keys.Scheme
	concurrency int
}

// NewDHTTransport returns a transport for address using DefaultConfig.
func NewDHTTransport(address string) (*DHTTransport, error) {
	return New(DefaultConfig(address))
}

// New returns a transport configured by cfg.
func New(cfg Config) (*DHTTransport, error) {
	baseURL, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	coder, err := message.CoderByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	concurrency := cfg.SendConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	logs.Debugf("NewDHTTransport(%s): codec=%s width=%d concurrency=%d", baseURL, coder.Name(), cfg.Keys.Width, concurrency)
	return &DHTTransport{
		baseURL:     baseURL,
		client:      client,
		coder:       coder,
		scheme:      cfg.Keys,
		concurrency: concurrency,
	}, nil
}

// SendMessages encodes and keys every message before the first put, so a
// bad channel id or unencodable message fails with nothing written.
//
// With send_concurrency > 1 the puts run in parallel; the first failure
// cancels the rest and the returned error joins one *TransportError per
// message that was not confirmed, ordered by batch index.
func (t *DHTTransport) SendMessages(ctx context.Context, dest string, msgs []message.Message) error {
	if err := keys.ValidateChannel(dest); err != nil {
		return err
	}
	logs.Debugf("SendMessages(%s): %d message(s)", dest, len(msgs))

	batch := make([]pendingPut, len(msgs))
	for i, m := range msgs {
		key, err := t.scheme.Key(dest, m)
		if err != nil {
			return fmt.Errorf("message %d (#%d in batch): %w", m.ID(), i, err)
		}
		value, err := t.coder.Encode(m)
		if err != nil {
			return fmt.Errorf("message %d (#%d in batch): encode: %w", m.ID(), i, err)
		}
		batch[i] = pendingPut{index: i, id: m.ID(), item: keyValuePair{Key: key, Value: string(value)}}
	}

	if t.concurrency <= 1 || len(batch) <= 1 {
		for _, p := range batch {
			if err := t.put(ctx, dest, p); err != nil {
				return err
			}
		}
		return nil
	}
	return t.putConcurrent(ctx, dest, batch)
}

func (t *DHTTransport) putConcurrent(ctx context.Context, dest string, batch []pendingPut) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	var mu sync.Mutex
	var failed []*TransportError
	record := func(err error) error {
		var te *TransportError
		if errors.As(err, &te) {
			mu.Lock()
			failed = append(failed, te)
			mu.Unlock()
		}
		return err
	}

	for _, p := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return record(t.putError(dest, p, 0, err))
			}
			if err := t.put(gctx, dest, p); err != nil {
				return record(err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		return nil
	}
	if len(failed) == 0 {
		return err
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].Index < failed[j].Index })
	errs := make([]error, len(failed))
	for i, te := range failed {
		errs[i] = te
	}
	return errors.Join(errs...)
}

func (t *DHTTransport) put(ctx context.Context, dest string, p pendingPut) error {
	body, err := json.Marshal(p.item)
	if err != nil {
		return t.putError(dest, p, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+PutPath, bytes.NewReader(body))
	if err != nil {
		return t.putError(dest, p, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return t.putError(dest, p, 0, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		// the reference DHT nodes answer 403 to a second write of a key
		if resp.StatusCode == http.StatusForbidden {
			err = fmt.Errorf("%w (%v)", ErrKeyExists, err)
		}
		return t.putError(dest, p, resp.StatusCode, err)
	}
	// drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

func (t *DHTTransport) putError(dest string, p pendingPut, status int, err error) *TransportError {
	return &TransportError{
		Op:         OpPut,
		Channel:    dest,
		Key:        p.item.Key,
		MessageID:  p.id,
		Index:      p.index,
		StatusCode: status,
		Err:        err,
	}
}

// ReceiveMessages issues one prefix scan. No matches is an empty slice and
// a nil error. A stored value that does not decode fails the whole call with
// a *message.DecodeError naming its key; nothing is skipped.
func (t *DHTTransport) ReceiveMessages(ctx context.Context, src string, lastReceived uint64) ([]message.Message, error) {
	prefix, err := t.scheme.Prefix(src, lastReceived)
	if err != nil {
		return nil, err
	}
	logs.Debugf("ReceiveMessages(%s): prefix %q", src, prefix)

	fail := func(status int, err error) error {
		return &TransportError{Op: OpGetMany, Channel: src, Key: prefix, Index: -1, StatusCode: status, Err: err}
	}

	reqURL := t.baseURL + GetManyPath + "?prefix=" + url.QueryEscape(prefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fail(0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fail(resp.StatusCode, err)
	}

	var items []keyValuePair
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&items); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("malformed getMany response: %w", err))
	}

	msgs := make([]message.Message, 0, len(items))
	for _, item := range items {
		if !strings.HasPrefix(item.Key, prefix) {
			return nil, fail(resp.StatusCode, fmt.Errorf("dht returned key %q outside prefix", item.Key))
		}
		_, parent, id, err := keys.Parse(item.Key)
		if err != nil {
			return nil, fail(resp.StatusCode, err)
		}

		m, err := t.coder.Decode([]byte(item.Value))
		if err != nil {
			var de *message.DecodeError
			if errors.As(err, &de) {
				return nil, &message.DecodeError{Key: item.Key, Coder: de.Coder, Err: de.Err}
			}
			return nil, &message.DecodeError{Key: item.Key, Coder: t.coder.Name(), Err: err}
		}
		if m.Parent() != parent || m.ID() != id {
			return nil, &message.DecodeError{
				Key:   item.Key,
				Coder: t.coder.Name(),
				Err:   fmt.Errorf("value holds message %d (parent %d), key says %d (parent %d)", m.ID(), m.Parent(), id, parent),
			}
		}
		msgs = append(msgs, m)
	}

	logs.Debugf("ReceiveMessages(%s): %d message(s)", src, len(msgs))
	return msgs, nil
}

// checkStatus turns a non-2xx response into an error carrying the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
