package logging

import "testing"

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	if !s.ShouldLog(0, "a.mp3") {
		t.Fatal("expected first event to log")
	}
	if s.ShouldLog(10, "a.mp3") {
		t.Fatal("expected event within bucket to be suppressed")
	}
	if !s.ShouldLog(30, "a.mp3") {
		t.Fatal("expected bucket crossing to log")
	}
	if !s.ShouldLog(30, "b.mp3") {
		t.Fatal("expected key change to log")
	}
	if !s.ShouldLog(100, "b.mp3") {
		t.Fatal("expected completion to log")
	}
	if s.ShouldLog(100, "b.mp3") {
		t.Fatal("expected repeated completion to be suppressed")
	}
	s.Reset()
	if !s.ShouldLog(-1, "b.mp3") {
		t.Fatal("expected key after reset to log")
	}
}
