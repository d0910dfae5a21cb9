package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"join ok", `{"type":"join-room","roomId":"r1","userId":"u","username":"a"}`, ""},
		{"join missing room", `{"type":"join-room","userId":"u"}`, "missing roomId"},
		{"toggle-mic missing flag", `{"type":"toggle-mic","roomId":"r1"}`, "missing isMuted"},
		{"toggle-mic ok", `{"type":"toggle-mic","roomId":"r1","isMuted":false}`, ""},
		{"offer missing description", `{"type":"offer","to":"c2"}`, "missing description"},
		{"offer missing to", `{"type":"offer","description":{"type":"offer","sdp":"v=0"}}`, "missing to/from"},
		{"candidate ok", `{"type":"ice-candidate","to":"c2","candidate":{"candidate":"x"}}`, ""},
		{"unknown", `{"type":"teleport"}`, "unsupported message type"},
		{"bad json", `{"type":`, "unexpected end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse err=%v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Parse err=%v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRelayedTypes(t *testing.T) {
	for _, typ := range []Type{TypeOffer, TypeAnswer, TypeICECandidate, TypeRenegotiateHint} {
		if !typ.Relayed() {
			t.Fatalf("%s.Relayed()=false", typ)
		}
	}
	for _, typ := range []Type{TypeJoinRoom, TypeUserJoined, TypeError} {
		if typ.Relayed() {
			t.Fatalf("%s.Relayed()=true", typ)
		}
	}
}

func TestDescriptionRoundTripKeepsSDP(t *testing.T) {
	msg, err := Offer("c2", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"})
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	b, _ := json.Marshal(msg)
	parsed, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	desc, err := DecodeDescription(parsed.Description)
	if err != nil {
		t.Fatalf("DecodeDescription: %v", err)
	}
	if desc.Type != webrtc.SDPTypeOffer || desc.SDP != "v=0\r\n" {
		t.Fatalf("desc=%+v", desc)
	}

	if _, err := DecodeDescription(json.RawMessage(`{"type":"rollback","sdp":""}`)); err == nil {
		t.Fatalf("DecodeDescription(rollback) err=nil, want error")
	}
}

func TestUserJoinedCarriesPeerFlags(t *testing.T) {
	msg := UserJoined("r1", Peer{ConnectionID: "c1", UserID: "u1", Username: "a", IsMuted: true})
	b, _ := json.Marshal(msg)
	var generic map[string]any
	if err := json.Unmarshal(b, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	peer, ok := generic["peer"].(map[string]any)
	if !ok {
		t.Fatalf("peer missing in %s", b)
	}
	if peer["isMuted"] != true || peer["connectionId"] != "c1" {
		t.Fatalf("peer=%v", peer)
	}
	if _, has := generic["description"]; has {
		t.Fatalf("unexpected description field in %s", b)
	}
}
