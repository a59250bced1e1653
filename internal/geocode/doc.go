// Package geocode verifies candidate addresses against an external
// Nominatim-compatible provider and attaches coordinates, a postcode, and an
// IANA timezone to each verified candidate. Confidence is scored on address
// components only; the venue name never participates.
package geocode
