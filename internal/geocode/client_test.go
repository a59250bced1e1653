package geocode_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"icemaker/internal/config"
	"icemaker/internal/geocode"
	"icemaker/internal/services"
)

func testGeocoderConfig(baseURL, tzURL string) config.Geocoder {
	return config.Geocoder{
		BaseURL:         baseURL,
		TimezoneURL:     tzURL,
		UserAgent:       "icemaker-test",
		RateLimitMillis: 0,
		RequestTimeout:  2,
		RetryAttempts:   3,
		RetryBaseMillis: 1,
		RetryMaxMillis:  5,
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestGeocodeParsesStructuredHit(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"street":    r.URL.Query().Get("street"),
			"city":      r.URL.Query().Get("city"),
			"limit":     r.URL.Query().Get("limit"),
			"useragent": r.Header.Get("User-Agent"),
		}
		w.Write([]byte(`[{"lat":"35.0126","lon":"-78.9238","display_name":"Crown Coliseum, Coliseum Drive, Fayetteville, NC","address":{"road":"Coliseum Drive","city":"Fayetteville","state":"North Carolina","postcode":"28306","ISO3166-2-lvl4":"US-NC"}}]`))
	}))
	defer server.Close()

	client := geocode.NewClient(testGeocoderConfig(server.URL, server.URL), geocode.WithSleeper(noSleep))
	result, err := client.Geocode(context.Background(), geocode.Query{
		Name: "Crown Coliseum", Street: "1960 Coliseum Dr", City: "Fayetteville", State: "NC",
	})
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if result.Latitude != 35.0126 || result.Longitude != -78.9238 {
		t.Fatalf("unexpected coordinates: %f,%f", result.Latitude, result.Longitude)
	}
	if result.Postcode != "28306" {
		t.Fatalf("postcode not extracted: %q", result.Postcode)
	}
	if gotQuery["street"] != "1960 Coliseum Dr" || gotQuery["city"] != "Fayetteville" {
		t.Fatalf("structured params not sent: %+v", gotQuery)
	}
	if gotQuery["limit"] != "1" {
		t.Fatalf("limit param missing: %+v", gotQuery)
	}
	if gotQuery["useragent"] != "icemaker-test" {
		t.Fatalf("custom user agent not sent: %+v", gotQuery)
	}
}

func TestGeocodeEmptyResultIsTerminalNoResult(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := geocode.NewClient(testGeocoderConfig(server.URL, server.URL), geocode.WithSleeper(noSleep))
	_, err := client.Geocode(context.Background(), geocode.Query{Street: "404 Nowhere Ln", City: "Fargo", State: "ND"})
	if !services.IsNoResult(err) {
		t.Fatalf("expected no-result error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("empty result retried %d times; misses must not be retried", calls)
	}
}

func TestGeocodeRetriesRateLimitHonoringRetryAfter(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"lat":"40.0","lon":"-75.0","display_name":"somewhere","address":{}}]`))
	}))
	defer server.Close()

	var slept []time.Duration
	sleeper := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	cfg := testGeocoderConfig(server.URL, server.URL)
	cfg.RetryMaxMillis = 2000
	client := geocode.NewClient(cfg, geocode.WithSleeper(sleeper))
	result, err := client.Geocode(context.Background(), geocode.Query{Street: "1 Main St", City: "Philadelphia", State: "PA"})
	if err != nil {
		t.Fatalf("Geocode after retries: %v", err)
	}
	if result.Latitude != 40.0 {
		t.Fatalf("unexpected latitude %f", result.Latitude)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	var sawRetryAfter bool
	for _, d := range slept {
		if d == time.Second {
			sawRetryAfter = true
		}
	}
	if !sawRetryAfter {
		t.Fatalf("Retry-After header not honored; sleeps were %v", slept)
	}
}

func TestGeocodeServerErrorExhaustsRetriesAsTransient(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := geocode.NewClient(testGeocoderConfig(server.URL, server.URL), geocode.WithSleeper(noSleep))
	_, err := client.Geocode(context.Background(), geocode.Query{Street: "1 Main St", City: "Boston", State: "MA"})
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestTimezoneEmptyPayloadIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"timeZone":""}`))
	}))
	defer server.Close()

	client := geocode.NewClient(testGeocoderConfig(server.URL, server.URL), geocode.WithSleeper(noSleep))
	_, err := client.Timezone(context.Background(), 42.0, -71.0)
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error for empty timezone, got %v", err)
	}
}

func TestTimezoneParsesName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("latitude") == "" || r.URL.Query().Get("longitude") == "" {
			t.Errorf("coordinates not sent: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"timeZone":"America/New_York"}`))
	}))
	defer server.Close()

	client := geocode.NewClient(testGeocoderConfig(server.URL, server.URL), geocode.WithSleeper(noSleep))
	tz, err := client.Timezone(context.Background(), 42.36, -71.06)
	if err != nil {
		t.Fatalf("Timezone: %v", err)
	}
	if tz != "America/New_York" {
		t.Fatalf("unexpected timezone %q", tz)
	}
}

func TestAddressConfidenceExcludesName(t *testing.T) {
	detail := geocode.AddressDetail{
		Road:    "Coliseum Drive",
		City:    "Fayetteville",
		State:   "North Carolina",
		ISOLvl4: "US-NC",
	}
	// The rink name never participates, so a quirky name cannot depress
	// the score when the address lines up.
	score := geocode.AddressConfidence("Coliseum Drive", "Fayetteville", "NC", detail)
	if score < 0.99 {
		t.Fatalf("exact address scored %.2f, want ~1.0", score)
	}
}

func TestAddressConfidenceMismatchedStateScoresZero(t *testing.T) {
	detail := geocode.AddressDetail{
		Road:    "Main Street",
		City:    "Springfield",
		ISOLvl4: "US-IL",
	}
	score := geocode.AddressConfidence("Main Street", "Springfield", "MA", detail)
	if score > 0.7 {
		t.Fatalf("wrong-state hit scored %.2f; must fall below accept threshold", score)
	}
}

func TestAddressConfidenceNoComparableComponents(t *testing.T) {
	if score := geocode.AddressConfidence("", "", "", geocode.AddressDetail{}); score != 0 {
		t.Fatalf("no components scored %.2f, want 0", score)
	}
}
