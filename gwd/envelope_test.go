package gwd

import "testing"

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	meta := ResponseMeta{ResponseTopic: "reply/here", CorrelationData: "abc123"}
	raw, err := encodeEnvelope([]byte("payload"), meta, nil)
	if err != nil {
		t.Fatal(err)
	}

	payload, gotMeta, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "payload" {
		t.Errorf("payload = %q, want payload", payload)
	}
	if gotMeta.ResponseTopic != "reply/here" || gotMeta.CorrelationData != "abc123" {
		t.Errorf("meta = %+v, want response_topic=reply/here correlation_data=abc123", gotMeta)
	}
}

func TestEncodeEnvelopePrefersExplicitUserProps(t *testing.T) {
	meta := ResponseMeta{UserProperties: map[string]string{"from-meta": "1"}}
	raw, err := encodeEnvelope(nil, meta, map[string]string{"explicit": "1"})
	if err != nil {
		t.Fatal(err)
	}
	_, gotMeta, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatal(err)
	}
	if gotMeta.UserProperties["explicit"] != "1" {
		t.Errorf("UserProperties = %+v, want the explicit map to win", gotMeta.UserProperties)
	}
}

func TestEncodeEnvelopeFallsBackToMetaUserProps(t *testing.T) {
	meta := ResponseMeta{UserProperties: map[string]string{"from-meta": "1"}}
	raw, err := encodeEnvelope(nil, meta, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, gotMeta, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatal(err)
	}
	if gotMeta.UserProperties["from-meta"] != "1" {
		t.Errorf("UserProperties = %+v, want fallback to meta.UserProperties", gotMeta.UserProperties)
	}
}

func TestDecodeEnvelopeRejectsMalformedJSON(t *testing.T) {
	if _, _, err := decodeEnvelope([]byte("not json")); err == nil {
		t.Error("decodeEnvelope accepted malformed JSON")
	}
}
