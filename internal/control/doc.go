// Package control provides the PID position regulator.
//
// The regulator is rate limited to its sample time: [PID.Update] called
// before the interval elapses returns the previous output unchanged. An
// accepted update computes
//
//	u = Kp*e + Ki*clamp(∫e, ±0.8*OutputMax) + Kd*lowpass(de/dt)
//
// and clamps u to [OutputMin, OutputMax].
//
// # Usage
//
//	pid, err := control.NewPID(control.Config{
//		Kp: 2.0, Ki: 0.4, Kd: 0.12,
//		OutputMin: -100, OutputMax: 100,
//		SampleTime: 0.01,
//	}, clock.Wall{})
//	pid.SetSetpoint(90)
//	out := pid.Update(angle)
//
// PID supports live tuning through [PID.GetParams] and [PID.SetParam].
// It is owned by a single control goroutine and is not safe for concurrent use.
package control
