//go:build integration

package mqtt

import (
	"testing"
	"time"
)

// Requires a broker at 127.0.0.1:1883.
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...
func TestIntegration_GateAckRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "gatekeeper-int-ack"

	client, err := Connect(cfg)
	if err != nil {
		t.Skipf("broker unavailable: %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	err = client.Subscribe(Topics{}.AllGateAcks(), 1, func(topic string, _ []byte) error {
		received <- GateIDFromAck(topic)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish(Topics{}.GateAck("gate-int00001"), []byte(`{"ok":true}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case id := <-received:
		if id != "gate-int00001" {
			t.Errorf("gate id = %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ack not received")
	}
}
