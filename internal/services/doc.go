// Package services defines the shared error taxonomy for pipeline stages and
// external collaborators. Callers classify failures with errors.Is against
// the exported sentinels rather than string matching.
package services
