// Package quadrature decodes a two-channel hall sensor into a signed
// position count.
//
// Every edge on either line is classified by a 16-entry transition table
// indexed by the previous and current 2-bit phase. Adjacent transitions
// count ±1; jumps across two phases are treated as bounce or a missed edge
// and count 0.
//
// # Concurrency
//
// [Decoder.Edge] runs on the edge source's execution context (an interrupt
// on TinyGo, a goroutine on the host). The count is an atomic cell written
// only inside a short critical section, so [Decoder.Count] and
// [Decoder.Angle] are safe from any goroutine and always see the result of
// a completed edge. Velocity tracking belongs to the control goroutine.
package quadrature
