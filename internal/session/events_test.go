package session

import (
	"encoding/json"
	"testing"
)

func marshalToMap(t *testing.T, event any) map[string]any {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return payload
}

func assertEnvelope(t *testing.T, payload map[string]any, wantType string) {
	t.Helper()
	if payload["type"] != wantType {
		t.Fatalf("expected type %q, got %#v", wantType, payload["type"])
	}
	if payload["version"] != float64(EventVersion) {
		t.Fatalf("expected version %d, got %#v", EventVersion, payload["version"])
	}
	if _, ok := payload["timestamp"]; !ok {
		t.Fatalf("expected timestamp field, got %#v", payload)
	}
}

func TestStatusEventShape(t *testing.T) {
	payload := marshalToMap(t, newStatusEvent(1.5, "streaming", "session active"))
	assertEnvelope(t, payload, "status")
	if payload["status"] != "streaming" {
		t.Fatalf("unexpected status: %#v", payload["status"])
	}
	if payload["timestamp"] != 1.5 {
		t.Fatalf("expected elapsed timestamp 1.5, got %#v", payload["timestamp"])
	}
}

func TestTranscriptEventShape(t *testing.T) {
	payload := marshalToMap(t, newTranscriptEvent(4.2, "hello world", true))
	assertEnvelope(t, payload, "transcript")
	if payload["text"] != "hello world" {
		t.Fatalf("unexpected text: %#v", payload["text"])
	}
	if payload["final"] != true {
		t.Fatalf("expected final true, got %#v", payload["final"])
	}
}

func TestFeedbackAndSummaryEventShapes(t *testing.T) {
	payload := marshalToMap(t, newFeedbackEvent(10, "try the fetch API"))
	assertEnvelope(t, payload, "feedback")
	if payload["content"] != "try the fetch API" {
		t.Fatalf("unexpected content: %#v", payload["content"])
	}

	payload = marshalToMap(t, newSummaryEvent(60, "- Topic: AJAX"))
	assertEnvelope(t, payload, "summary")
	if payload["content"] != "- Topic: AJAX" {
		t.Fatalf("unexpected content: %#v", payload["content"])
	}
}

func TestErrorEventShape(t *testing.T) {
	payload := marshalToMap(t, newErrorEvent(2.0, "feedback generation failed"))
	assertEnvelope(t, payload, "error")
	if payload["message"] != "feedback generation failed" {
		t.Fatalf("unexpected message: %#v", payload["message"])
	}
}

func TestConnectionEventShape(t *testing.T) {
	payload := marshalToMap(t, NewConnectionEvent())
	assertEnvelope(t, payload, "connection")
	if payload["status"] != "connected" {
		t.Fatalf("unexpected status: %#v", payload["status"])
	}
}
