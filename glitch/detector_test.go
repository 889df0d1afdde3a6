package glitch

import (
	"testing"
	"time"

	"github.com/opd-ai/audiogovernor/clock"
)

var epoch = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

// expectedMs is the cadence of a 512-frame block at 48 kHz (~10.67ms).
var expectedMs = ExpectedDurationMs(512, 48000)

func newTestDetector() (*Detector, *clock.MockTimeProvider) {
	mock := clock.NewMockTimeProvider(epoch)
	d := NewDetector(DefaultConfig())
	d.SetTimeProvider(mock)
	return d, mock
}

func advanceMs(mock *clock.MockTimeProvider, ms float64) {
	mock.Advance(time.Duration(ms * float64(time.Millisecond)))
}

func TestOnTimeCallbacksNeverDetect(t *testing.T) {
	d, mock := newTestDetector()

	for i := 0; i < 100; i++ {
		result := d.CheckCallback(expectedMs*0.98, expectedMs)
		if result.Detected {
			t.Fatalf("callback %d unexpectedly detected %s", i, result.Type)
		}
		advanceMs(mock, expectedMs)
	}

	if stats := d.Stats(); stats.Underruns != 0 || stats.Dropouts != 0 || stats.Checks != 100 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSlowCallbackDetectsUnderrun(t *testing.T) {
	d, _ := newTestDetector()

	result := d.CheckCallback(expectedMs*3, expectedMs)
	if !result.Detected {
		t.Fatal("expected underrun to be detected")
	}
	if result.Type != TypeUnderrun {
		t.Errorf("Type = %s, want underrun", result.Type)
	}
	if result.Ratio < 2.9 || result.Ratio > 3.1 {
		t.Errorf("Ratio = %f, want ~3", result.Ratio)
	}
	if !result.Timestamp.Equal(epoch) {
		t.Errorf("Timestamp = %v, want %v", result.Timestamp, epoch)
	}
}

func TestWithinToleranceIsNotUnderrun(t *testing.T) {
	d, _ := newTestDetector()
	if result := d.CheckCallback(expectedMs*1.4, expectedMs); result.Detected {
		t.Errorf("1.4x budget should be within tolerance, got %s", result.Type)
	}
}

func TestLargeGapDetectsDropout(t *testing.T) {
	d, mock := newTestDetector()

	d.CheckCallback(expectedMs, expectedMs)
	advanceMs(mock, expectedMs*5)

	result := d.CheckCallback(expectedMs, expectedMs)
	if !result.Detected || result.Type != TypeDropout {
		t.Fatalf("expected dropout, got %+v", result)
	}
	if stats := d.Stats(); stats.Dropouts != 1 {
		t.Errorf("Dropouts = %d, want 1", stats.Dropouts)
	}
}

func TestDropoutOutranksUnderrun(t *testing.T) {
	d, mock := newTestDetector()

	d.CheckCallback(expectedMs, expectedMs)
	advanceMs(mock, expectedMs*4)

	result := d.CheckCallback(expectedMs*3, expectedMs)
	if result.Type != TypeDropout {
		t.Errorf("Type = %s, want dropout", result.Type)
	}
}

func TestFirstCallbackCannotBeDropout(t *testing.T) {
	d, mock := newTestDetector()
	advanceMs(mock, 10000)
	if result := d.CheckCallback(expectedMs, expectedMs); result.Detected {
		t.Errorf("first callback should never detect, got %s", result.Type)
	}
}

func TestResetForgetsPreviousCallback(t *testing.T) {
	d, mock := newTestDetector()
	d.CheckCallback(expectedMs, expectedMs)
	d.Reset()
	advanceMs(mock, expectedMs*10)

	if result := d.CheckCallback(expectedMs, expectedMs); result.Detected {
		t.Errorf("callback after reset should not detect, got %s", result.Type)
	}
	if stats := d.Stats(); stats.Checks != 1 {
		t.Errorf("Checks = %d after reset, want 1", stats.Checks)
	}
}

func TestCheckCallbackAtUsesSuppliedTimestamps(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.CheckCallbackAt(epoch, expectedMs, expectedMs)
	result := d.CheckCallbackAt(epoch.Add(time.Second), expectedMs, expectedMs)
	if result.Type != TypeDropout {
		t.Errorf("Type = %s, want dropout", result.Type)
	}
	if !result.Timestamp.Equal(epoch.Add(time.Second)) {
		t.Errorf("Timestamp = %v", result.Timestamp)
	}
}

func TestOnGlitchNotifiesSynchronously(t *testing.T) {
	d, _ := newTestDetector()

	var got []Detection
	h := d.OnGlitch(func(det Detection) { got = append(got, det) })

	d.CheckCallback(expectedMs, expectedMs)
	d.CheckCallback(expectedMs*2, expectedMs)
	if len(got) != 1 || got[0].Type != TypeUnderrun {
		t.Fatalf("expected one underrun notification, got %+v", got)
	}

	d.Unsubscribe(h)
	d.CheckCallback(expectedMs*2, expectedMs)
	if len(got) != 1 {
		t.Errorf("unsubscribed handler still notified")
	}
}

func TestZeroExpectedDurationNeverDetects(t *testing.T) {
	d, _ := newTestDetector()
	if result := d.CheckCallback(100, 0); result.Detected {
		t.Errorf("zero expected duration should not detect")
	}
	if ExpectedDurationMs(0, 48000) != 0 {
		t.Errorf("ExpectedDurationMs with zero frames should be 0")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if err := (Config{UnderrunTolerance: 1, DropoutFactor: 2}).Validate(); err == nil {
		t.Error("tolerance of 1 should be rejected")
	}
	if err := (Config{UnderrunTolerance: 1.5, DropoutFactor: 0.5}).Validate(); err == nil {
		t.Error("dropout factor below 1 should be rejected")
	}
}

func TestTypeString(t *testing.T) {
	if TypeUnderrun.String() != "underrun" || TypeDropout.String() != "dropout" || TypeNone.String() != "none" {
		t.Error("unexpected type names")
	}
}
