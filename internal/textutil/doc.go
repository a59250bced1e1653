// Package textutil provides the text processing primitives behind entity
// resolution: canonical normalization of venue names and address fragments,
// a normalized edit-distance similarity ratio, and great-circle distance.
package textutil
