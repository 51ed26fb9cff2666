package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeAgentMessage_Start(t *testing.T) {
	data := []byte(`{"inner":{"kind":"start","name":"agent-1","secret":"s3cret"}}`)
	msg, err := DecodeAgentMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start, ok := msg.(*AgentStart)
	if !ok {
		t.Fatalf("expected *AgentStart, got %T", msg)
	}
	if start.Name != "agent-1" || start.Secret != "s3cret" {
		t.Fatalf("unexpected fields: %+v", start)
	}
}

func TestDecodeAgentMessage_UnknownKind(t *testing.T) {
	data := []byte(`{"inner":{"kind":"nonsense"}}`)
	if _, err := DecodeAgentMessage(data); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDecodeAgentMessage_MissingKind(t *testing.T) {
	data := []byte(`{"inner":{"name":"agent-1"}}`)
	if _, err := DecodeAgentMessage(data); err == nil {
		t.Fatal("expected error for missing kind")
	}
}

func TestDecodeAgentMessage_InvalidJSON(t *testing.T) {
	if _, err := DecodeAgentMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestDecodeClientMessage_Start(t *testing.T) {
	data := []byte(`{"inner":{"kind":"start","connection_target":"agent-1","target_ip":"10.0.0.5","target_port":22,"protocol":"tcp","secret":"c"}}`)
	msg, err := DecodeClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start, ok := msg.(*ClientStart)
	if !ok {
		t.Fatalf("expected *ClientStart, got %T", msg)
	}
	if start.TargetPort != 22 {
		t.Fatalf("unexpected target port: %d", start.TargetPort)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	encoded, err := Encode(&RelayError{Kind: KindError, Message: "boom"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(encoded, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	var got RelayError
	if err := json.Unmarshal(env.Inner, &got); err != nil {
		t.Fatalf("unmarshal inner: %v", err)
	}
	if got.Kind != KindError || got.Message != "boom" {
		t.Fatalf("round trip changed the variant: %+v", got)
	}
}
