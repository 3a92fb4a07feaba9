package kafka

import (
	"reflect"
	"testing"
	"time"

	"faq-rag-go/pkg/events"
)

func TestAskEventMessage(t *testing.T) {
	in := events.AskEvent{
		RequestID:       "req-1",
		Query:           "ما هي ساعات العمل؟",
		K:               3,
		IndexVersion:    "v1",
		Outcome:         events.OutcomeAnswered,
		Answer:          "من 9 إلى 5",
		ConfidenceScore: 0.85,
		SourceIDs:       []string{"1", "7"},
		CreatedAt:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	msg, err := encodeAskEvent(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "req-1" {
		t.Errorf("key = %q, want request id", msg.Key)
	}
	out, err := decodeAskEvent(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("decoded = %+v, want %+v", out, in)
	}
}

func TestBrokers(t *testing.T) {
	got := brokers(" kafka-1:9092, ,kafka-2:9092 ")
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("brokers() = %v, want %v", got, want)
	}
}
