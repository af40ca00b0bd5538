// Package cluster tracks the status of workers: whether each is idle,
// busy or offline, how many requests it has processed, and its last
// sampled resource usage.
//
// Each worker owns its own row and writes it after every request. The
// broker is the only other writer: it marks a worker offline when it
// stops replying.
package cluster
