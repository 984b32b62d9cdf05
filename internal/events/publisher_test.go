package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"barrel-market-api/internal/logging"
	"barrel-market-api/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Report(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, logging.Discard())
	p.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	sub := model.Submission{Text: "stone", X: 10, Y: 20, Z: -30}
	p.Report(model.Persisted(sub, &model.Record{Name: "Камень", MinecraftID: "stone", RecordDate: "2025-01-02"}))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "10:20:-30", string(w.msgs[0].Key))

	var ev OutcomeEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "persisted", ev.Status)
	assert.Equal(t, "stone", ev.ItemID)
	assert.Equal(t, "2025-01-02", ev.RecordDate)
}

func TestPublisher_ReportSwallowsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(w, logging.Discard())

	assert.NotPanics(t, func() {
		p.Report(model.Failed(model.Submission{}, model.ErrExtraction))
	})

	var ev OutcomeEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "failed", ev.Status)
	assert.Equal(t, "extraction failed", ev.Error)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
