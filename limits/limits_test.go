package limits

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestValidateBufferFrames(t *testing.T) {
	tests := []struct {
		name    string
		frames  int
		wantErr bool
	}{
		{"minimum", MinBufferFrames, false},
		{"typical", 512, false},
		{"maximum", MaxBufferFrames, false},
		{"too small", MinBufferFrames - 1, true},
		{"zero", 0, true},
		{"too large", MaxBufferFrames + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBufferFrames(tt.frames)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBufferFrames(%d) error = %v, wantErr %v", tt.frames, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutOfRange) {
				t.Errorf("expected ErrOutOfRange, got %v", err)
			}
		})
	}
}

func TestValidateSampleRate(t *testing.T) {
	for _, rate := range []float64{8000, 44100, 48000, 96000, 384000} {
		if err := ValidateSampleRate(rate); err != nil {
			t.Errorf("ValidateSampleRate(%v) unexpected error: %v", rate, err)
		}
	}
	for _, rate := range []float64{0, -48000, 7999, 384001} {
		if err := ValidateSampleRate(rate); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("ValidateSampleRate(%v) = %v, want ErrOutOfRange", rate, err)
		}
	}
}

func TestValidateBufferSize(t *testing.T) {
	if err := ValidateBufferSize(1); err != nil {
		t.Errorf("size 1 should be valid: %v", err)
	}
	if err := ValidateBufferSize(MaxPooledBufferSize); err != nil {
		t.Errorf("max size should be valid: %v", err)
	}
	if err := ValidateBufferSize(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("size 0 should be out of range, got %v", err)
	}
	if err := ValidateBufferSize(MaxPooledBufferSize + 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("oversized buffer should be out of range, got %v", err)
	}
}

func TestValidateCapacity(t *testing.T) {
	if err := ValidateCapacity("history", 100, MaxWarningHistory); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateCapacity("history", 0, MaxWarningHistory); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("zero capacity should be rejected, got %v", err)
	}
	if err := ValidateCapacity("window", MaxCPUWindow+1, MaxCPUWindow); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("oversized capacity should be rejected, got %v", err)
	}
}

func TestValidateFractionAndRatio(t *testing.T) {
	if err := ValidateFraction("threshold", 0.7); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateFraction("threshold", 1.2); err == nil {
		t.Error("expected error for fraction above 1")
	}
	if err := ValidateFraction("threshold", -0.1); err == nil {
		t.Error("expected error for negative fraction")
	}
	if err := ValidateRatio("tolerance", 1.5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRatio("tolerance", 1.0); err == nil {
		t.Error("expected error for ratio of 1")
	}
	if err := ValidateFraction("threshold", math.NaN()); err == nil {
		t.Error("expected error for NaN fraction")
	}
	if err := ValidateRatio("tolerance", math.NaN()); err == nil {
		t.Error("expected error for NaN ratio")
	}
	if err := ValidateRatio("tolerance", math.Inf(1)); err == nil {
		t.Error("expected error for infinite ratio")
	}
}

func TestValidateDuration(t *testing.T) {
	if err := ValidateDuration("window", 10*time.Millisecond, time.Second); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateDuration("window", 0, time.Second); err == nil {
		t.Error("expected error for zero duration")
	}
	if err := ValidateDuration("window", 2*time.Second, time.Second); err == nil {
		t.Error("expected error for duration above max")
	}
}
