package fingerprint

import "testing"

func TestComputeDeterministic(t *testing.T) {
	in := Input{
		Source: "sk8stuff",
		Name:   "Crown Coliseum",
		Street: "1960 Coliseum Dr",
		City:   "Fayetteville",
		State:  "NC",
		Zip:    "28306",
	}
	a := Compute(in)
	b := Compute(in)
	if a.Key == "" || a.Key != b.Key {
		t.Fatalf("expected stable key, got %q and %q", a.Key, b.Key)
	}
	if a.Streetless {
		t.Fatal("street address present, should not be streetless")
	}
}

func TestComputeNormalizesFormatting(t *testing.T) {
	a := Compute(Input{Source: "wiki", Name: "Polar Ice Arena", City: "Durham", State: "NC"})
	b := Compute(Input{Source: "wiki", Name: "  POLAR ice arena!  ", City: "durham", State: "nc"})
	if a.Key != b.Key {
		t.Fatal("expected formatting differences to normalize away")
	}
}

func TestComputeSuffixWordsDoNotDistinguish(t *testing.T) {
	a := Compute(Input{Source: "wiki", Name: "Polar Ice Arena", City: "Durham", State: "NC"})
	b := Compute(Input{Source: "wiki", Name: "Polar Skating Rink", City: "Durham", State: "NC"})
	if a.Key != b.Key {
		t.Fatal("expected generic venue descriptors to be stripped before hashing")
	}
}

func TestComputeGranularityPrefersZipStreet(t *testing.T) {
	full := Compute(Input{Source: "ag", Name: "Crown Coliseum", Street: "1960 Coliseum Dr", City: "Fayetteville", State: "NC", Zip: "28306"})
	cityOnly := Compute(Input{Source: "ag", Name: "Crown Coliseum", City: "Fayetteville", State: "NC"})
	if full.Key == cityOnly.Key {
		t.Fatal("expected different keys at different address granularity")
	}
	if full.Streetless {
		t.Fatal("full address should not be flagged streetless")
	}
	if !cityOnly.Streetless {
		t.Fatal("city-only fallback must be flagged streetless")
	}
}

func TestComputeStateOnlyFallback(t *testing.T) {
	res := Compute(Input{Source: "wiki", Name: "Mystery Rink", State: "AK"})
	if !res.Streetless {
		t.Fatal("state-only fallback must be flagged streetless")
	}
	if res.Key == "" {
		t.Fatal("expected a key even with minimal fields")
	}
}

func TestComputeSourcesAreIndependentEvidence(t *testing.T) {
	a := Compute(Input{Source: "sk8stuff", Name: "Crown Coliseum", City: "Fayetteville", State: "NC"})
	b := Compute(Input{Source: "arena_guide", Name: "Crown Coliseum", City: "Fayetteville", State: "NC"})
	if a.Key == b.Key {
		t.Fatal("observations from different sources must fingerprint independently")
	}
}
