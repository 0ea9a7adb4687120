package testutil

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

// KafkaTest returns broker addresses for an integration test plus a cleanup
// function. Brokers come from KAFKA_TEST_BROKERS (comma separated); if unset
// and TESTCONTAINERS=1 a single-node cluster is started. Otherwise the test
// is skipped.
func KafkaTest(t *testing.T) ([]string, func()) {
	t.Helper()

	if raw := os.Getenv("KAFKA_TEST_BROKERS"); raw != "" {
		return strings.Split(raw, ","), func() {}
	}
	if os.Getenv("TESTCONTAINERS") != "1" {
		t.Skip("KAFKA_TEST_BROKERS not set, skipping integration test")
	}

	ctx := context.Background()
	ctr, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.6.1",
		kafka.WithClusterID("riskproxy-test"),
	)
	if err != nil {
		t.Fatalf("kafkatest: start kafka container: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("kafkatest: terminate kafka container: %v", err)
		}
	}

	brokers, err := ctr.Brokers(ctx)
	if err != nil {
		cleanup()
		t.Fatalf("kafkatest: brokers: %v", err)
	}
	return brokers, cleanup
}
