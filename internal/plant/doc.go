// Package plant simulates a geared DC motor with a two-channel hall sensor.
//
// The mechanical model is a first-order speed lag integrated with a
// [dynamo.Integrator]. The plant exposes the same surfaces as the real
// hardware: two direction inputs and a PWM output for [motor.HBridge], and
// a pair of sensor lines that report edges to a [quadrature.Decoder].
//
// A plant is stepped either by subscribing it to a [clock.Virtual], which
// makes a whole tuning run deterministic and instantaneous, or by [Motor.Run]
// in real time on its own goroutine.
package plant
