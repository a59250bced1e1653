// Package push reconciles promoted directory entries into a downstream
// consumer database. Pushes are additive: downstream rows are inserted or
// address-refreshed, never deleted, and curated downstream fields (name,
// phone, website, timezone) are never overwritten. A plan is computed first
// so dry runs can show the exact writes without performing them.
package push
