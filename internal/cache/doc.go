// Package cache provides a time-based value cache used to throttle
// repeated canister queries within a configurable window.
package cache
