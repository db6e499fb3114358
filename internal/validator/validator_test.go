package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const goodSerial = "C02X1234ABCD"

func TestDecideLevels(t *testing.T) {
	v := New(DefaultConfig())

	tests := []struct {
		name       string
		text       string
		confidence float64
		level      Level
		reason     Reason
	}{
		{"high confidence accepts", goodSerial, 0.92, LevelAccept, ReasonHighConfidence},
		{"accept threshold is inclusive", goodSerial, 0.90, LevelAccept, ReasonHighConfidence},
		{"borderline band suspends", goodSerial, 0.78, LevelBorderline, ReasonNeedsConfirm},
		{"borderline lower bound inclusive", goodSerial, 0.70, LevelBorderline, ReasonNeedsConfirm},
		{"below borderline rejects", goodSerial, 0.69, LevelReject, ReasonLowConfidence},
		{"malformed rejects despite confidence", "AB12", 0.99, LevelReject, ReasonInvalidFormat},
		{"bad composition rejects", "ABCDEFGHJK12", 0.99, LevelReject, ReasonInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.Decide(tt.text, tt.confidence)
			assert.Equal(t, tt.level, r.Level)
			assert.Equal(t, tt.reason, r.Reason)
			assert.Equal(t, tt.text, r.Serial)
		})
	}
}

func TestDecideIdempotent(t *testing.T) {
	v := New(DefaultConfig())
	for _, conf := range []float64{0.0, 0.69, 0.70, 0.78, 0.90, 1.0} {
		first := v.Decide(goodSerial, conf)
		second := v.Decide(goodSerial, conf)
		assert.Equal(t, first, second)
	}
}

func TestDecideClampsConfidence(t *testing.T) {
	v := New(DefaultConfig())
	r := v.Decide(goodSerial, 1.5)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, LevelAccept, r.Level)

	r = v.Decide(goodSerial, -0.5)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Equal(t, LevelReject, r.Level)
}

func TestNoDetection(t *testing.T) {
	v := New(DefaultConfig())
	r := v.NoDetection()
	assert.Equal(t, LevelReject, r.Level)
	assert.Equal(t, ReasonNoDetection, r.Reason)
	assert.Empty(t, r.Serial)
}

func TestConfirmDeny(t *testing.T) {
	v := New(DefaultConfig())
	borderline := v.Decide(goodSerial, 0.78)

	confirmed := v.Confirm(borderline)
	assert.Equal(t, LevelAccept, confirmed.Level)
	assert.Equal(t, ReasonConfirmed, confirmed.Reason)
	assert.Equal(t, goodSerial, confirmed.Serial)
	assert.Equal(t, borderline.Confidence, confirmed.Confidence)

	denied := v.Deny(borderline)
	assert.Equal(t, LevelReject, denied.Level)
	assert.Equal(t, ReasonDenied, denied.Reason)
}

func TestConfirmDenyOnlyAffectBorderline(t *testing.T) {
	v := New(DefaultConfig())
	accepted := v.Decide(goodSerial, 0.95)
	assert.Equal(t, accepted, v.Confirm(accepted))
	assert.Equal(t, accepted, v.Deny(accepted))

	rejected := v.Decide(goodSerial, 0.2)
	assert.Equal(t, rejected, v.Confirm(rejected))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{AcceptThreshold: 0.7, BorderlineThreshold: 0.9}.Validate())
	assert.Error(t, Config{AcceptThreshold: 1.2, BorderlineThreshold: 0.7}.Validate())
}
