// Package domain holds the core types shared across the selection and
// pipeline stages: time windows, capture-file identities, probed packet
// ranges, and the error taxonomy of a run.
package domain
