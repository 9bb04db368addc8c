package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/models"
)

type fakeConn struct {
	published  []*nats.Msg
	publishErr error
	flushErr   error
	flushes    []time.Duration
	closed     bool
}

func (f *fakeConn) PublishMsg(msg *nats.Msg) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeConn) FlushTimeout(timeout time.Duration) error {
	f.flushes = append(f.flushes, timeout)
	return f.flushErr
}

func (f *fakeConn) Close() { f.closed = true }

var promotion = &models.PromotionMessage{
	Title:       "Apple Inc (AAPL)",
	Subtitle:    "Daily analysis 2025-03-14",
	TTSText:     "Apple shares rose today.",
	CaptionText: "Apple climbs",
	SeriesData:  []models.SeriesPoint{{Date: "2025-03-13", Value: 210.5}},
}

func TestPublisher_PublishPromotion(t *testing.T) {
	conn := &fakeConn{}
	publisher := newPublisher(conn, "veloryn.promotions", 0, arbor.NewNoOpLogger())

	require.NoError(t, publisher.PublishPromotion(context.Background(), promotion))

	require.Len(t, conn.published, 1)
	msg := conn.published[0]
	assert.Equal(t, "veloryn.promotions", msg.Subject)
	assert.Equal(t, "application/json", msg.Header.Get(HeaderContentType))
	assert.NotEmpty(t, msg.Header.Get(HeaderMessageID))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, "Apple Inc (AAPL)", decoded["title"])
	assert.Equal(t, "Apple shares rose today.", decoded["ttsText"])
	assert.Equal(t, "Apple climbs", decoded["captionText"])
	assert.Len(t, decoded["seriesData"], 1)

	assert.Equal(t, []time.Duration{5 * time.Second}, conn.flushes)
}

func TestPublisher_FlushBoundedByDeadline(t *testing.T) {
	conn := &fakeConn{}
	publisher := newPublisher(conn, "s", time.Minute, arbor.NewNoOpLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, publisher.PublishPromotion(ctx, promotion))
	require.Len(t, conn.flushes, 1)
	assert.LessOrEqual(t, conn.flushes[0], 2*time.Second)
}

func TestPublisher_Errors(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		conn := &fakeConn{}
		publisher := newPublisher(conn, "s", 0, arbor.NewNoOpLogger())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := publisher.PublishPromotion(ctx, promotion)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, conn.published)
	})

	t.Run("publish failure", func(t *testing.T) {
		conn := &fakeConn{publishErr: nats.ErrConnectionClosed}
		publisher := newPublisher(conn, "s", 0, arbor.NewNoOpLogger())

		err := publisher.PublishPromotion(context.Background(), promotion)
		assert.ErrorIs(t, err, nats.ErrConnectionClosed)
		assert.Empty(t, conn.flushes)
	})

	t.Run("flush failure", func(t *testing.T) {
		flushErr := errors.New("flush timeout")
		conn := &fakeConn{flushErr: flushErr}
		publisher := newPublisher(conn, "s", 0, arbor.NewNoOpLogger())

		err := publisher.PublishPromotion(context.Background(), promotion)
		assert.ErrorIs(t, err, flushErr)
	})
}

func TestPublisher_Close(t *testing.T) {
	conn := &fakeConn{}
	publisher := newPublisher(conn, "s", 0, arbor.NewNoOpLogger())
	require.NoError(t, publisher.Close())
	assert.True(t, conn.closed)
}
