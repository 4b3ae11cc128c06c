package kafka

import (
	"testing"
	"time"

	"github.com/lvdashuaibi/onevote/config"
	"github.com/lvdashuaibi/onevote/internal/model"
	"github.com/segmentio/kafka-go"
)

func TestEncodeVoteEventKeysByVoter(t *testing.T) {
	castAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	msg, err := encodeVoteEvent(&model.VoteEvent{CandidateID: "c1", VoterID: "v1", CastAt: castAt})
	if err != nil {
		t.Fatalf("encodeVoteEvent() error = %v", err)
	}
	if string(msg.Key) != "v1" {
		t.Errorf("Key = %q, want v1", msg.Key)
	}
	if !msg.Time.Equal(castAt) {
		t.Errorf("Time = %v, want %v", msg.Time, castAt)
	}

	event, err := decodeVoteEvent(msg)
	if err != nil {
		t.Fatalf("decodeVoteEvent() error = %v", err)
	}
	if event.CandidateID != "c1" || event.VoterID != "v1" {
		t.Errorf("decoded = %+v", event)
	}
}

func TestDecodeVoteEventRejectsBadMessages(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", "{"},
		{"missing voter", `{"candidateId":"c1"}`},
		{"missing candidate", `{"voterId":"v1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeVoteEvent(kafka.Message{Value: []byte(tt.value)}); err == nil {
				t.Error("decodeVoteEvent() should fail")
			}
		})
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(config.KafkaConfig{Topic: "t"}); err == nil {
		t.Error("NewProducer() without brokers should fail")
	}
	if _, err := NewConsumer(config.KafkaConfig{Brokers: []string{"b"}}, nil); err == nil {
		t.Error("NewConsumer() without topic should fail")
	}
}
