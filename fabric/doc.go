// Package fabric implements the in-process message fabric connecting agents
// and session observers: addressable pub/sub with at-most-once delivery per
// handler, no persistence and no replay. Subscriptions live for the process
// lifetime or until their unsubscribe closure is called.
package fabric
