// Package tuner runs step-response experiments on the position loop and
// reduces them to transient-response metrics.
//
// An experiment resets the encoder and a fresh regulator, commands a step,
// and records one [Sample] per control cycle while forwarding the clamped
// regulator output to the motor driver. [Analyze] turns the recording into
// a [Result]; [Score] ranks results on a 0 to 100 scale.
//
// [Tuner.AutoTune] searches for a critical proportional gain, derives
// Ziegler-Nichols gains from it, scores a few hand-scaled variants and
// confirms the best one with a larger step.
//
// Every experiment stops the motor on exit, including on driver errors
// and context cancellation.
package tuner
