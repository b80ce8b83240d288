// Package events lets components request background work without depending
// on the task package. A producer emits a TaskRequestEvent; every registered
// EventHandler receives it and decides whether to act on it.
package events
