package okx

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBuildLoginFrame(t *testing.T) {
	creds := Credentials{APIKey: "key-123", Secret: "supersecret", Passphrase: "pass"}
	now := time.Unix(1_700_000_000, 0)

	raw, err := buildLoginFrame(creds, now)
	if err != nil {
		t.Fatalf("buildLoginFrame: %v", err)
	}

	var frame loginFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}

	if frame.Op != "login" {
		t.Fatalf("op = %q, want login", frame.Op)
	}
	if len(frame.Args) != 1 {
		t.Fatalf("args len = %d, want 1", len(frame.Args))
	}

	arg := frame.Args[0]
	if arg.APIKey != creds.APIKey {
		t.Errorf("apiKey = %q, want %q", arg.APIKey, creds.APIKey)
	}
	if arg.Passphrase != creds.Passphrase {
		t.Errorf("passphrase = %q, want %q", arg.Passphrase, creds.Passphrase)
	}
	if arg.Timestamp != "1700000000" {
		t.Errorf("timestamp = %q, want 1700000000", arg.Timestamp)
	}
	if arg.Sign == "" {
		t.Error("sign must not be empty")
	}

	// Same inputs must always produce the same signature (determinism, no
	// hidden randomness in the signing path).
	raw2, err := buildLoginFrame(creds, now)
	if err != nil {
		t.Fatalf("buildLoginFrame (2nd call): %v", err)
	}
	var frame2 loginFrame
	if err := json.Unmarshal(raw2, &frame2); err != nil {
		t.Fatalf("unmarshal frame (2nd call): %v", err)
	}
	if frame2.Args[0].Sign != arg.Sign {
		t.Error("signature must be deterministic for identical inputs")
	}

	// Changing the secret must change the signature.
	otherCreds := creds
	otherCreds.Secret = "different-secret"
	raw3, err := buildLoginFrame(otherCreds, now)
	if err != nil {
		t.Fatalf("buildLoginFrame (different secret): %v", err)
	}
	var frame3 loginFrame
	if err := json.Unmarshal(raw3, &frame3); err != nil {
		t.Fatalf("unmarshal frame (different secret): %v", err)
	}
	if frame3.Args[0].Sign == arg.Sign {
		t.Error("signature must differ when the secret differs")
	}
}
