// Package server is the observer-facing WebSocket transport.
//
// Each connected client is registered as a hub subscriber and receives every
// broadcast payload; inbound JSON frames are decoded into orchestrator
// events. The transport does no conversation logic of its own.
package server
