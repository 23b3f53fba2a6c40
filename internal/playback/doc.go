// Package playback implements the per-guild audio queue.
//
// Every guild gets a VoiceQueue whose state is owned by a single goroutine.
// Public operations are submitted to that goroutine as closures and run one at
// a time; completion notifications from the audio backend arrive on a Bridge
// and are consumed by the same goroutine, so queue state is never touched from
// the backend's goroutines.
//
// A Registry maps guild IDs to their queues and is the entry point for the
// rest of the bot.
package playback
