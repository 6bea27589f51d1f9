//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"consentry/internal/audit"
	"consentry/pkg/testutil/containers"
)

func TestKafkaPublisher(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rp := containers.NewRedpandaContainer(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	publisher, err := audit.NewKafkaPublisher(ctx, []string{rp.Broker}, "consentry.audit.test", logger)
	require.NoError(t, err)
	defer publisher.Close()

	event := audit.Event{
		ContactID: "contact-1",
		Action:    audit.ActionConsentChanged,
		ProgramID: "prog-1",
		Channel:   "email",
		Detail:    "opt_in",
	}
	require.NoError(t, publisher.Emit(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics("consentry.audit.test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "contact-1", string(records[0].Key), "events are keyed by contact for partition order")

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &decoded))
	assert.Equal(t, audit.ActionConsentChanged, decoded.Action)
	assert.Equal(t, "prog-1", decoded.ProgramID)
	assert.NotEmpty(t, decoded.ID, "publisher stamps an event id")
	assert.False(t, decoded.Timestamp.IsZero())
}
