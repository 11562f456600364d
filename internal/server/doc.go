// Package server is PodCache's RESP protocol front end: a TCP accept
// loop hands each connection its own goroutine, which reads commands
// with a resp.Decoder, dispatches them against a *tiered.Cache, and
// writes replies with a resp.Encoder.
package server
