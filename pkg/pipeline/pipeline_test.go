package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgeflare/threatflow/internal/testutil"
	"github.com/edgeflare/threatflow/pkg/pipeline/transform"
	"github.com/edgeflare/threatflow/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// sliceSub delivers msgs in order and then reports the subscription closed.
type sliceSub struct {
	msgs []stream.Message
	pos  int
}

func newSliceSub(topic string, values ...string) *sliceSub {
	s := &sliceSub{}
	for i, v := range values {
		s.msgs = append(s.msgs, stream.Message{Topic: topic, Value: []byte(v), Offset: int64(i)})
	}
	return s
}

func (s *sliceSub) Next(ctx context.Context) (stream.Message, error) {
	if err := ctx.Err(); err != nil {
		return stream.Message{}, err
	}
	if s.pos >= len(s.msgs) {
		return stream.Message{}, stream.ErrSubscriptionClosed
	}
	msg := s.msgs[s.pos]
	s.pos++
	return msg, nil
}

func (s *sliceSub) Close() error { return nil }

type memSink struct {
	failOn map[int]error
	rows   []transform.Record
	calls  int
}

func (s *memSink) Persist(_ context.Context, r transform.Record) error {
	s.calls++
	if err := s.failOn[s.calls]; err != nil {
		return err
	}
	s.rows = append(s.rows, r)
	return nil
}

type memPublisher struct {
	err      error
	topics   []string
	payloads [][]byte
	mu       sync.Mutex
}

func (p *memPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

const (
	goodRecord  = `{"attack_types":["Malware"],"attack_vectors":["Email"],"urgency":["Hot","High"],"targets":["UserFocused"],"locations":["Germany"],"expiration_date":"2025-03-01T00:00:00"}`
	badDate     = `{"attack_types":["Phishing"],"expiration_date":"not-a-date"}`
	thirdRecord = `{"attack_types":["Trojan"],"locations":["France"],"expiration_date":""}`
)

func TestConsumerSkipsRejectedRecord(t *testing.T) {
	sub := newSliceSub("enriched-records", goodRecord, badDate, thirdRecord)
	sink := &memSink{}
	core, logs := observer.New(zap.ErrorLevel)

	c := &Consumer{Sub: sub, Sink: sink, Logger: zap.New(core)}
	err := c.Run(context.Background())
	assert.ErrorIs(t, err, stream.ErrSubscriptionClosed)

	require.Len(t, sink.rows, 2)
	assert.Equal(t, []string{"Malware"}, sink.rows[0].AttackTypes)
	assert.Equal(t, []string{"Trojan"}, sink.rows[1].AttackTypes)
	assert.False(t, sink.rows[1].ExpirationDate.Valid)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, int64(1), entry.ContextMap()["offset"])
	assert.Equal(t, OutcomeRejected, entry.ContextMap()["outcome"])
}

func TestConsumerReplayDuplicates(t *testing.T) {
	sink := &memSink{}
	c := &Consumer{Sub: newSliceSub("t", goodRecord, goodRecord), Sink: sink}

	assert.ErrorIs(t, c.Run(context.Background()), stream.ErrSubscriptionClosed)
	require.Len(t, sink.rows, 2)
	assert.Equal(t, sink.rows[0], sink.rows[1])
}

func TestConsumerDecodeErrors(t *testing.T) {
	sink := &memSink{}
	c := &Consumer{
		Sub:  newSliceSub("t", "not json", `["array"]`, `{"targets":"x"}`, "\xff\xfe", goodRecord),
		Sink: sink,
	}

	assert.ErrorIs(t, c.Run(context.Background()), stream.ErrSubscriptionClosed)
	assert.Equal(t, 1, sink.calls, "only the valid record reaches the sink")
	assert.Len(t, sink.rows, 1)
}

func TestConsumerPersistErrorContinues(t *testing.T) {
	boom := errors.New("connection reset")
	sink := &memSink{failOn: map[int]error{1: boom}}
	core, logs := observer.New(zap.ErrorLevel)

	c := &Consumer{Sub: newSliceSub("t", goodRecord, thirdRecord), Sink: sink, Logger: zap.New(core)}
	assert.ErrorIs(t, c.Run(context.Background()), stream.ErrSubscriptionClosed)

	assert.Equal(t, 2, sink.calls)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, []string{"Trojan"}, sink.rows[0].AttackTypes)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, OutcomePersistError, logs.All()[0].ContextMap()["outcome"])
}

func TestConsumerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &memSink{}
	c := &Consumer{Sub: newSliceSub("t", goodRecord), Sink: sink}
	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
	assert.Zero(t, sink.calls)
}

type fetcherFunc func(ctx context.Context) []byte

func (f fetcherFunc) Fetch(ctx context.Context) []byte { return f(ctx) }

func TestRunProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &memPublisher{err: errors.New("broker down")}
	calls := 0
	f := fetcherFunc(func(context.Context) []byte {
		calls++
		if calls == 2 {
			panic("unexpected payload")
		}
		return []byte(`{"error":"OTX API failed with status code 503","details":"unavailable"}`)
	})

	done := make(chan error, 1)
	go func() {
		done <- RunProducer(ctx, f, pub, "otx-blue", time.Millisecond, nil)
	}()

	assert.Eventually(t, func() bool { return pub.count() >= 3 }, 2*time.Second, time.Millisecond,
		"publish failures and panics do not stop the loop")
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, "otx-blue", pub.topics[0])
	assert.Contains(t, string(pub.payloads[0]), "status code 503")
}

func TestRunProducerCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &memPublisher{}
	f := fetcherFunc(func(context.Context) []byte { return []byte(`{}`) })

	done := make(chan error, 1)
	go func() {
		done <- RunProducer(ctx, f, pub, "otx-blue", time.Hour, nil)
	}()

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("producer did not stop while sleeping")
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview([]byte("short"), 200))
	assert.Equal(t, strings.Repeat("a", 200)+"...", preview([]byte(strings.Repeat("a", 300)), 200))
	assert.Equal(t, "äö...", preview([]byte("äöü"), 2))
}

func TestEnricher(t *testing.T) {
	sub := newSliceSub("otx-blue",
		string(testutil.ReadFixture(t, "otx_pulses.json")),
		`{"error":"OTX API failed with status code 503","details":"unavailable"}`,
		`{"results":[]}`,
	)
	pub := &memPublisher{}

	e := &Enricher{Sub: sub, Publisher: pub, SinkTopic: "enriched-records"}
	assert.ErrorIs(t, e.Run(context.Background()), stream.ErrSubscriptionClosed)

	require.Len(t, pub.payloads, 2)
	assert.Equal(t, []string{"enriched-records", "enriched-records"}, pub.topics)

	var first transform.EnrichedThreat
	require.NoError(t, json.Unmarshal(pub.payloads[0], &first))
	assert.Contains(t, first.AttackTypes, transform.Botnet)
	assert.Contains(t, first.AttackTypes, transform.Phishing)
	assert.Contains(t, first.AttackVectors, transform.VectorEmail)
	assert.Equal(t, [2]string{transform.Hot, transform.Critical}, first.Urgency)
	assert.Equal(t, []string{"United States", "Germany"}, first.Locations)
	assert.Equal(t, "2025-03-29T00:00:00", first.ExpirationDate)

	var second transform.EnrichedThreat
	require.NoError(t, json.Unmarshal(pub.payloads[1], &second))
	assert.Equal(t, [2]string{transform.Cold, transform.Low}, second.Urgency)
	assert.Equal(t, []string{transform.Unknown}, second.Locations)
}

func TestEnrichThenConsume(t *testing.T) {
	pub := &memPublisher{}
	e := &Enricher{
		Sub:       newSliceSub("otx-blue", string(testutil.ReadFixture(t, "otx_pulses.json"))),
		Publisher: pub,
		SinkTopic: "enriched-records",
	}
	require.ErrorIs(t, e.Run(context.Background()), stream.ErrSubscriptionClosed)

	values := make([]string, 0, len(pub.payloads))
	for _, p := range pub.payloads {
		values = append(values, string(p))
	}

	sink := &memSink{}
	c := &Consumer{Sub: newSliceSub("enriched-records", values...), Sink: sink}
	require.ErrorIs(t, c.Run(context.Background()), stream.ErrSubscriptionClosed)

	require.Len(t, sink.rows, 2)
	assert.Equal(t, "2025-03-29 00:00:00", transform.FormatDate(sink.rows[0].ExpirationDate))
	assert.Equal(t, "2025-01-01 00:00:00", transform.FormatDate(sink.rows[1].ExpirationDate))
}
