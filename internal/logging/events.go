package logging

// KeyInfo describes a key by its fingerprint and the settings it was issued
// under. Zero fields are left out of the event.
type KeyInfo struct {
	Fingerprint string
	Mode        string
	Encoding    string
	Order       int
	EnvelopeID  string
}

func (k KeyInfo) metadata() map[string]any {
	md := map[string]any{}
	if k.Fingerprint != "" {
		md["key_fingerprint"] = k.Fingerprint
	}
	if k.Mode != "" {
		md["mode"] = k.Mode
	}
	if k.Encoding != "" {
		md["encoding"] = k.Encoding
	}
	if k.Order > 0 {
		md["order"] = k.Order
	}
	if k.EnvelopeID != "" {
		md["envelope_id"] = k.EnvelopeID
	}
	return md
}

// KeyIssued records a key returned by encryption.
func KeyIssued(k KeyInfo) AuditEvent {
	return AuditEvent{EventType: EventKeyIssued, Decision: DecisionAllow, Metadata: k.metadata()}
}

// KeyStored records an envelope written to the key store.
func KeyStored(envelopeID string) AuditEvent {
	return AuditEvent{EventType: EventKeyStored, Decision: DecisionInfo, Metadata: map[string]any{"envelope_id": envelopeID}}
}

// KeyDeleted records an envelope removed from the key store.
func KeyDeleted(envelopeID string) AuditEvent {
	return AuditEvent{EventType: EventKeyDeleted, Decision: DecisionInfo, Metadata: map[string]any{"envelope_id": envelopeID}}
}

// Decrypted records a decryption. A non-empty reason marks it rejected.
func Decrypted(k KeyInfo, reason string) AuditEvent {
	if reason != "" {
		return AuditEvent{EventType: EventDecryptRejected, Decision: DecisionDeny, Reason: reason, Metadata: k.metadata()}
	}
	return AuditEvent{EventType: EventDecrypt, Decision: DecisionAllow, Metadata: k.metadata()}
}

// SquareIssued records a square handed out on its own.
func SquareIssued(order, transformations int) AuditEvent {
	return AuditEvent{
		EventType: EventSquareIssued,
		Decision:  DecisionInfo,
		Metadata:  map[string]any{"order": order, "transformations": transformations},
	}
}

// RPCDenied records a call refused for bad input.
func RPCDenied(method, reason string) AuditEvent {
	return AuditEvent{EventType: EventRPCDenied, Decision: DecisionDeny, Reason: reason, Metadata: map[string]any{"method": method}}
}

// ServerLifecycle records the RPC server starting or stopping.
func ServerLifecycle(action string, details map[string]any) AuditEvent {
	md := map[string]any{"action": action}
	for k, v := range details {
		md[k] = v
	}
	return AuditEvent{EventType: EventServerLifecycle, Decision: DecisionInfo, Metadata: md}
}
