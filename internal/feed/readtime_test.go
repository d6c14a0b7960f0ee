package feed

import (
	"strings"
	"testing"
)

func TestEstimateEmptyText(t *testing.T) {
	if got := Estimate("", 200); got != 0 {
		t.Errorf("expected 0 for empty text, got %v", got)
	}
	if got := Estimate("   \n\t ", 200); got != 0 {
		t.Errorf("expected 0 for whitespace text, got %v", got)
	}
}

func TestEstimateZeroPace(t *testing.T) {
	if got := Estimate("some words here", 0); got != 0 {
		t.Errorf("expected 0 for zero pace, got %v", got)
	}
}

func TestEstimateWordCount(t *testing.T) {
	text := strings.Repeat("palabra ", 400)
	got := Estimate(text, 200)
	if got != 2 {
		t.Errorf("expected 2 minutes for 400 words at 200 wpm, got %v", got)
	}
}

func TestEstimateFractionalMinutes(t *testing.T) {
	text := strings.Repeat("w ", 100)
	got := Estimate(text, 200)
	if got != 0.5 {
		t.Errorf("expected 0.5, got %v", got)
	}
}
