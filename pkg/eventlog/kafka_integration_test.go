//go:build integration

package eventlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestKafkaSinkAppend(t *testing.T) {
	ctx := context.Background()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.1.2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	sink, err := NewKafkaSink([]string{broker}, "vigil.events.test")
	require.NoError(t, err)
	t.Cleanup(sink.Close)

	alertID := uuid.New()
	ev := Event{
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Kind:      KindAlertDispatched,
		AlertID:   alertID,
		Metadata:  map[string]string{"matched": "3"},
	}
	require.NoError(t, sink.Append(ctx, ev))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics("vigil.events.test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, alertID.String(), string(records[0].Key))

	var got Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, KindAlertDispatched, got.Kind)
	assert.Equal(t, "3", got.Metadata["matched"])
}
