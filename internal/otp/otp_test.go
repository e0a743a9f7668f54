package otp

import (
	"strconv"
	"testing"
)

func TestGenerateShape(t *testing.T) {
	g, err := NewGenerator(0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("non numeric code %q", code)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d out of range", n)
		}
	}
}

func TestGenerateCustomLength(t *testing.T) {
	g, err := NewGenerator(4)
	if err != nil {
		t.Fatal(err)
	}
	code, err := g.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 4 || code[0] == '0' {
		t.Fatalf("bad 4 digit code %q", code)
	}
}

func TestGenerateRejectsHugeLength(t *testing.T) {
	if _, err := NewGenerator(40); err == nil {
		t.Fatal("expected error")
	}
}

// Buckets the 900000 possible codes into 9 leading-digit bins and checks a
// chi-square statistic against a generous bound (df=8, p≈0.0001).
func TestGenerateRoughlyUniform(t *testing.T) {
	g, _ := NewGenerator(6)
	const samples = 45000
	var bins [9]int
	for i := 0; i < samples; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatal(err)
		}
		bins[code[0]-'1']++
	}
	expected := float64(samples) / 9
	var chi2 float64
	for _, observed := range bins {
		d := float64(observed) - expected
		chi2 += d * d / expected
	}
	if chi2 > 31.8 {
		t.Fatalf("distribution looks skewed: chi2=%.2f bins=%v", chi2, bins)
	}
}
