package bridge

import (
	"encoding/hex"
	"testing"
)

// TestCalculateHandshakeTagVector pins CalculateHandshakeTag against the
// reference vector named in its doc comment: secret "mcubridge-shared",
// nonce bytes 0x00..0x0F, tag the first 16 bytes of HMAC-SHA256.
func TestCalculateHandshakeTagVector(t *testing.T) {
	secret := []byte("mcubridge-shared")
	nonce := make([]byte, HandshakeNonceLength)
	for i := range nonce {
		nonce[i] = byte(i)
	}

	want, err := hex.DecodeString("7d126dd4b69478778cf0aeded8cdf4e9")
	if err != nil {
		t.Fatal(err)
	}

	got := CalculateHandshakeTag(secret, nonce)
	if hex.EncodeToString(got) != hex.EncodeToString(want) {
		t.Errorf("CalculateHandshakeTag = %x, want %x", got, want)
	}
	if !VerifyHandshakeTag(secret, nonce, got) {
		t.Error("VerifyHandshakeTag rejected the tag it just computed")
	}
	if VerifyHandshakeTag(secret, nonce, append([]byte{}, got[:len(got)-1]...)) {
		t.Error("VerifyHandshakeTag accepted a short tag")
	}
}

func TestGenerateHandshakeNonceMonotonic(t *testing.T) {
	nonce, counter, err := GenerateHandshakeNonce(5)
	if err != nil {
		t.Fatal(err)
	}
	if counter != 6 {
		t.Errorf("newCounter = %d, want 6", counter)
	}
	extracted, err := ExtractNonceCounter(nonce)
	if err != nil {
		t.Fatal(err)
	}
	if extracted != counter {
		t.Errorf("extracted counter = %d, want %d", extracted, counter)
	}
}

func TestValidateNonceCounterRejectsReplay(t *testing.T) {
	nonce, counter, err := GenerateHandshakeNonce(10)
	if err != nil {
		t.Fatal(err)
	}
	ok, newLast, err := ValidateNonceCounter(nonce, counter)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("ValidateNonceCounter accepted a nonce whose counter did not advance")
	}
	if newLast != counter {
		t.Errorf("newLastCounter = %d, want unchanged %d", newLast, counter)
	}

	ok, newLast, err = ValidateNonceCounter(nonce, counter-1)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("ValidateNonceCounter rejected a nonce whose counter did advance")
	}
	if newLast != counter {
		t.Errorf("newLastCounter = %d, want %d", newLast, counter)
	}
}

func TestLinkConfigPackParseRoundTrip(t *testing.T) {
	cfg := LinkConfig{AckTimeoutMS: 500, RetryLimit: 3, ResponseTimeoutMS: 3000}
	parsed, err := ParseLinkConfig(cfg.Pack())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != cfg {
		t.Errorf("round trip = %+v, want %+v", parsed, cfg)
	}
}

func TestLinkConfigValidate(t *testing.T) {
	valid := LinkConfig{AckTimeoutMS: 500, RetryLimit: 3, ResponseTimeoutMS: 3000}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate(%+v) = %v, want nil", valid, err)
	}

	tooFewRetries := valid
	tooFewRetries.RetryLimit = 0
	if err := tooFewRetries.Validate(); err == nil {
		t.Error("Validate accepted retry_limit = 0")
	}

	tooSlow := valid
	tooSlow.ResponseTimeoutMS = HandshakeResponseTimeoutMaxMS + 1
	if err := tooSlow.Validate(); err == nil {
		t.Error("Validate accepted an out-of-range response_timeout_ms")
	}
}
