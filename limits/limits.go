package limits

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// MinBufferFrames is the smallest audio callback block accepted.
	MinBufferFrames = 16

	// MaxBufferFrames is the largest audio callback block accepted.
	MaxBufferFrames = 16384

	// MinSampleRate is the lowest supported sample rate in Hz.
	MinSampleRate = 8000

	// MaxSampleRate is the highest supported sample rate in Hz.
	MaxSampleRate = 384000

	// MaxPooledBufferSize is the largest buffer, in samples, the pool hands out.
	MaxPooledBufferSize = MaxSampleRate * 8

	// MaxWarningHistory caps the warning ring capacity.
	MaxWarningHistory = 100000

	// MaxCPUWindow caps the rolling CPU sample window.
	MaxCPUWindow = 4096

	// MaxCompilerCache caps the number of memoized compilations.
	MaxCompilerCache = 65536

	// MaxRetentionWindow caps how long an idle pooled buffer may be kept.
	MaxRetentionWindow = time.Hour
)

// ErrOutOfRange indicates a value outside its allowed bounds.
var ErrOutOfRange = errors.New("value out of range")

// ValidateBufferFrames validates an audio callback block size.
func ValidateBufferFrames(frames int) error {
	if frames < MinBufferFrames || frames > MaxBufferFrames {
		return fmt.Errorf("%w: buffer frames %d not in [%d, %d]", ErrOutOfRange, frames, MinBufferFrames, MaxBufferFrames)
	}
	return nil
}

// ValidateSampleRate validates a sample rate in Hz.
func ValidateSampleRate(rate float64) error {
	if rate < MinSampleRate || rate > MaxSampleRate {
		return fmt.Errorf("%w: sample rate %.0f not in [%d, %d]", ErrOutOfRange, rate, MinSampleRate, MaxSampleRate)
	}
	return nil
}

// ValidateBufferSize validates a pooled buffer length in samples.
func ValidateBufferSize(size int) error {
	if size < 1 || size > MaxPooledBufferSize {
		return fmt.Errorf("%w: buffer size %d not in [1, %d]", ErrOutOfRange, size, MaxPooledBufferSize)
	}
	return nil
}

// ValidateCapacity validates a bounded collection capacity against max.
func ValidateCapacity(name string, capacity, max int) error {
	if capacity < 1 || capacity > max {
		return fmt.Errorf("%w: %s %d not in [1, %d]", ErrOutOfRange, name, capacity, max)
	}
	return nil
}

// ValidateFraction validates a value in the closed interval [0, 1].
func ValidateFraction(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s %.3f not in [0, 1]", ErrOutOfRange, name, v)
	}
	return nil
}

// ValidateRatio validates a multiplier that must be strictly greater than 1.
func ValidateRatio(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 1) || v <= 1 {
		return fmt.Errorf("%w: %s %.3f must be a finite value greater than 1", ErrOutOfRange, name, v)
	}
	return nil
}

// ValidateDuration validates a duration in the range (0, max].
func ValidateDuration(name string, d, max time.Duration) error {
	if d <= 0 || d > max {
		return fmt.Errorf("%w: %s %v not in (0, %v]", ErrOutOfRange, name, d, max)
	}
	return nil
}
