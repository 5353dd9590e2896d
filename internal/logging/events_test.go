package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestKeyEvents(t *testing.T) {
	info := KeyInfo{Fingerprint: "a1b2c3d4e5f60718", Mode: "enhanced", Encoding: "binary", Order: 4}

	tests := []struct {
		name     string
		event    AuditEvent
		typ      EventType
		decision Decision
	}{
		{"issued", KeyIssued(info), EventKeyIssued, DecisionAllow},
		{"decrypted", Decrypted(info, ""), EventDecrypt, DecisionAllow},
		{"rejected", Decrypted(info, "Wrong key size"), EventDecryptRejected, DecisionDeny},
		{"stored", KeyStored("id-1"), EventKeyStored, DecisionInfo},
		{"square", SquareIssued(8, 4), EventSquareIssued, DecisionInfo},
		{"denied", RPCDenied("/magiccipher.v1.MagicCipher/Square", "order too large"), EventRPCDenied, DecisionDeny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.EventType != tt.typ || tt.event.Decision != tt.decision {
				t.Fatalf("got %s/%s, want %s/%s", tt.event.EventType, tt.event.Decision, tt.typ, tt.decision)
			}
		})
	}

	issued := KeyIssued(info)
	if issued.Metadata["key_fingerprint"] != info.Fingerprint || issued.Metadata["order"] != 4 {
		t.Fatalf("unexpected metadata %v", issued.Metadata)
	}
	if _, ok := issued.Metadata["envelope_id"]; ok {
		t.Fatalf("empty envelope id should be omitted: %v", issued.Metadata)
	}
	if got := Decrypted(info, "Wrong key size").Reason; got != "Wrong key size" {
		t.Fatalf("unexpected reason %q", got)
	}
}

func TestKeyIssuedRoundTripsThroughLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewAuditLogger("rpc", WithoutStdout(), WithWriter(buf))
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	if err := logger.Emit(KeyIssued(KeyInfo{Fingerprint: "00ff00ff00ff00ff", Mode: "basic", EnvelopeID: "id-2"})); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	var decoded AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if decoded.Component != "rpc" || decoded.Metadata["envelope_id"] != "id-2" {
		t.Fatalf("unexpected event %+v", decoded)
	}
	if strings.Contains(buf.String(), "[REDACTED") {
		t.Fatalf("fingerprints should not be redacted: %s", buf.String())
	}
}

func TestServerLifecycleMergesDetails(t *testing.T) {
	event := ServerLifecycle("start", map[string]any{"addr": "127.0.0.1:9090", "max_conns": 64})
	if event.Metadata["action"] != "start" || event.Metadata["addr"] != "127.0.0.1:9090" || event.Metadata["max_conns"] != 64 {
		t.Fatalf("unexpected metadata %v", event.Metadata)
	}
	if got := ServerLifecycle("stop", nil).Metadata; len(got) != 1 || got["action"] != "stop" {
		t.Fatalf("unexpected metadata %v", got)
	}
}
