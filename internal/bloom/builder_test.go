package bloom

import (
	"errors"
	"math"
	"testing"
)

func TestCompleteFromElementsAndRate(t *testing.T) {
	builder := &FilterBuilder{ExpectedElements: 10000, FalsePositiveRate: 0.01}
	if err := builder.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	expectedSize := int(math.Ceil(-10000 * math.Log(0.01) / (math.Ln2 * math.Ln2)))
	if builder.Size != expectedSize {
		t.Errorf("Size = %d, expected %d", builder.Size, expectedSize)
	}
	if builder.Hashes < 6 || builder.Hashes > 8 {
		t.Errorf("Hashes = %d, expected around 7", builder.Hashes)
	}
	if builder.FalsePositiveRate > 0.011 {
		t.Errorf("Achieved rate %f worse than requested", builder.FalsePositiveRate)
	}
}

func TestCompleteFromElementsAndSize(t *testing.T) {
	builder := &FilterBuilder{ExpectedElements: 1000, Size: 10000}
	if err := builder.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if builder.Hashes != OptimalHashes(1000, 10000) {
		t.Errorf("Hashes = %d, expected optimal %d", builder.Hashes, OptimalHashes(1000, 10000))
	}
	expected := AchievableFalsePositiveRate(10000, builder.Hashes, 1000)
	if builder.FalsePositiveRate != expected {
		t.Errorf("Rate = %v, expected %v", builder.FalsePositiveRate, expected)
	}
}

func TestCompleteFromSizeAndHashes(t *testing.T) {
	builder := &FilterBuilder{Size: 10000, Hashes: 7}
	if err := builder.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	expected := int(math.Ceil(10000 * math.Ln2 * math.Ln2 / -math.Log(DefaultFalsePositiveRate)))
	if builder.ExpectedElements != expected {
		t.Errorf("ExpectedElements = %d, expected %d", builder.ExpectedElements, expected)
	}
	if builder.FalsePositiveRate <= 0 || builder.FalsePositiveRate >= 1 {
		t.Errorf("Rate %v outside (0,1)", builder.FalsePositiveRate)
	}
}

func TestCompleteFromSizeHashesAndRate(t *testing.T) {
	builder := &FilterBuilder{Size: 10000, Hashes: 7, FalsePositiveRate: 0.01}
	if err := builder.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	// Inserting the derived element count must not exceed the requested rate
	// by more than rounding.
	achieved := AchievableFalsePositiveRate(10000, 7, float64(builder.ExpectedElements))
	if achieved > 0.0115 {
		t.Errorf("Derived element count %d yields rate %f", builder.ExpectedElements, achieved)
	}
}

func TestCompleteInsufficientParameters(t *testing.T) {
	cases := []*FilterBuilder{
		{},
		{ExpectedElements: 100},
		{FalsePositiveRate: 0.01},
		{Hashes: 4},
	}
	for i, builder := range cases {
		if err := builder.Complete(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestCompleteRejectsInvalidValues(t *testing.T) {
	cases := []*FilterBuilder{
		{ExpectedElements: -5, FalsePositiveRate: 0.01},
		{ExpectedElements: 100, FalsePositiveRate: 1.5},
		{ExpectedElements: 100, FalsePositiveRate: 0.01, CountingBits: 7},
		{ExpectedElements: 100, FalsePositiveRate: 0.01, Method: "NoSuchHash"},
		{ExpectedElements: 100, FalsePositiveRate: 0.01, CharsetName: "no-such-charset"},
	}
	for i, builder := range cases {
		if err := builder.Complete(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestCompleteDefaults(t *testing.T) {
	builder := &FilterBuilder{ExpectedElements: 100, FalsePositiveRate: 0.05}
	if err := builder.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if builder.Method != HashMD5 {
		t.Errorf("default hash method = %s", builder.Method)
	}
	if builder.CountingBits != DefaultCountingBits {
		t.Errorf("default counting bits = %d", builder.CountingBits)
	}
	if builder.CharsetName != DefaultCharsetName {
		t.Errorf("default charset = %s", builder.CharsetName)
	}
	if builder.RedisPort != DefaultRedisPort || builder.RedisConnections != DefaultRedisConnections {
		t.Error("redis defaults not applied")
	}
}

func TestCompatibility(t *testing.T) {
	a := &FilterBuilder{ExpectedElements: 100, FalsePositiveRate: 0.01}
	b := &FilterBuilder{ExpectedElements: 100, FalsePositiveRate: 0.01}
	c := &FilterBuilder{ExpectedElements: 100, FalsePositiveRate: 0.01, Method: HashMurmur3}
	for _, builder := range []*FilterBuilder{a, b, c} {
		if err := builder.Complete(); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
	}

	if !a.IsCompatibleTo(b) {
		t.Error("identical configurations reported incompatible")
	}
	if a.IsCompatibleTo(c) {
		t.Error("different hash methods reported compatible")
	}
}

func TestToBytesCharsetConversion(t *testing.T) {
	utf8Builder := &FilterBuilder{ExpectedElements: 10, FalsePositiveRate: 0.01}
	latinBuilder := &FilterBuilder{ExpectedElements: 10, FalsePositiveRate: 0.01, CharsetName: "ISO-8859-1"}
	for _, builder := range []*FilterBuilder{utf8Builder, latinBuilder} {
		if err := builder.Complete(); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
	}

	word := "Käsebrot"
	if got := utf8Builder.ToBytes(word); len(got) != len([]byte(word)) {
		t.Errorf("UTF-8 conversion changed length: %d", len(got))
	}
	latin := latinBuilder.ToBytes(word)
	if len(latin) != 8 {
		t.Errorf("ISO-8859-1 conversion length = %d, expected 8", len(latin))
	}
	if latin[1] != 0xE4 {
		t.Errorf("ISO-8859-1 byte for ä = %#x, expected 0xE4", latin[1])
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := &FilterBuilder{ExpectedElements: 100, FalsePositiveRate: 0.01, ReadSlaves: []string{"a:6379"}}
	clone := original.Clone()
	clone.ExpectedElements = 999
	clone.ReadSlaves[0] = "b:6379"

	if original.ExpectedElements != 100 {
		t.Error("clone mutated original element count")
	}
	if original.ReadSlaves[0] != "a:6379" {
		t.Error("clone shares read slave slice with original")
	}
}
