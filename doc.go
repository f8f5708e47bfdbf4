// Package ringpool provides a single-producer, multi-consumer ring buffer
// in the style of the LMAX Disruptor.
//
// Items live in a pre-allocated power-of-two ring and are reused in place.
// The producer claims a sequence with Next, fills the slot returned by Get
// and makes it visible with Publish. Consumers are arranged in stages:
// every group in a stage sees every published sequence, and each stage
// only sees what the previous stage has finished. A group is either a
// sequential Reader, a WorkerPool whose workers compete for sequences so
// that each one is handled exactly once, or a Poller driven by the caller.
//
// Coordination is done with padded atomic counters only; how a goroutine
// waits for progress is chosen with a wait.Strategy.
//
// If for some reason you have Go code that needs to hand messages between
// goroutines at sub-microsecond latency, consider this over a channel.
package ringpool
