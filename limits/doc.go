// Package limits provides centralized bounds and validation functions for the
// audio governor. Every component validates its configuration and its inputs
// against the same numbers, so a host that passes config validation can never
// feed a value a component will later reject.
//
// # Bounds
//
//   - MinBufferFrames / MaxBufferFrames: the audio callback block size. 16
//     frames is the smallest block any mainstream host uses; 16384 frames
//     covers offline rendering.
//
//   - MinSampleRate / MaxSampleRate: 8 kHz telephony up to 384 kHz.
//
//   - MaxPooledBufferSize: the largest sample buffer the pool will hand out,
//     one second of 384 kHz audio across 8 channels.
//
//   - MaxWarningHistory and MaxCPUWindow: caps on bounded histories so a
//     misconfiguration cannot turn a ring into an unbounded allocation.
//
// # Validation Functions
//
// Each validation function returns an error wrapping [ErrOutOfRange] with
// the offending value and the allowed range:
//
//	if err := limits.ValidateBufferFrames(frames); err != nil {
//	    // reject the sample
//	}
//
// Ratio and threshold checks use [ValidateFraction] and [ValidateRatio].
package limits
