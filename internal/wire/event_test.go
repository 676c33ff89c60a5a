package wire

import (
	"errors"
	"testing"
)

func TestDecodeJobEventSuccess(t *testing.T) {
	payload := `{"message":"Your canvas has been successfully rendered.","video_url":"https://cdn.example.com/a.mp4","source_id":"c1","source_type":"canvas","status":"success","detail":null}`
	event, err := DecodeJobEvent([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if event.SourceID != "c1" {
		t.Fatalf("expected source id c1, got %s", event.SourceID)
	}
	if event.SourceType != SourceTypeCanvas {
		t.Fatalf("expected canvas source type, got %s", event.SourceType)
	}
	if event.Failed() {
		t.Fatalf("success event reported as failed")
	}
	if event.VideoURL != "https://cdn.example.com/a.mp4" {
		t.Fatalf("unexpected video url %q", event.VideoURL)
	}
}

func TestDecodeJobEventFailureCarriesDetail(t *testing.T) {
	payload := `{"message":"An error occurred.","source_id":"p9","source_type":"prompt","status":"failure","detail":"render worker timed out"}`
	event, err := DecodeJobEvent([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !event.Failed() {
		t.Fatalf("failure event not reported as failed")
	}
	if event.Detail != "render worker timed out" {
		t.Fatalf("unexpected detail %q", event.Detail)
	}
}

func TestDecodeJobEventRejectsInvalidFrames(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{name: "not-json", payload: `render done`, wantErr: ErrMalformedFrame},
		{name: "missing-source-id", payload: `{"message":"x","source_type":"canvas","status":"success"}`, wantErr: ErrMissingSourceID},
		{name: "unknown-source-type", payload: `{"message":"x","source_id":"c1","source_type":"scene","status":"success"}`, wantErr: ErrUnknownSourceType},
		{name: "unknown-status", payload: `{"message":"x","source_id":"c1","source_type":"canvas","status":"pending"}`, wantErr: ErrUnknownStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeJobEvent([]byte(tt.payload)); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAuthFrameRoundTrip(t *testing.T) {
	frame := NewAuthFrame("channel-token")
	encoded, err := frame.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	decoded, err := DecodeAuthFrame(encoded)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if decoded.Token != "channel-token" {
		t.Fatalf("unexpected token %q", decoded.Token)
	}
}

func TestDecodeAuthFrameRejectsInvalidFrames(t *testing.T) {
	if _, err := DecodeAuthFrame([]byte(`{"type":"ping","token":"t"}`)); !errors.Is(err, ErrUnexpectedFrameType) {
		t.Fatalf("expected unexpected frame type error, got %v", err)
	}
	if _, err := DecodeAuthFrame([]byte(`{"type":"auth","token":"  "}`)); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}
