// Package rolling aggregates operational metrics over fixed-length sample
// windows.
//
// The Aggregator keeps one Window per Metric. Each window is a circular
// buffer of the last N samples; pushing into a full window evicts the oldest
// sample. Aggregates (count, sum, mean, latest) are computed on demand by
// Snapshot and never stored.
//
// The compliance score is the mean of the compliance-rate window scaled to
// 0-100, or 0 while the window is empty.
package rolling
