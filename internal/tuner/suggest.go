package tuner

// Suggest returns gain adjustment hints for a result.
func Suggest(r Result) []string {
	var out []string

	slow := r.RiseTime.OK && r.RiseTime.Value > 2
	switch {
	case r.Overshoot > 25:
		out = append(out, "overshoot is large: decrease Kp or increase Kd")
	case r.Overshoot < 5 && slow:
		out = append(out, "response is sluggish: increase Kp")
	}

	switch {
	case r.SteadyStateError > 3:
		out = append(out, "steady-state error is large: increase Ki")
	case r.SteadyStateError > 1:
		out = append(out, "raise Ki slightly to improve accuracy")
	}

	if r.Oscillations > 3 {
		out = append(out, "response rings: increase Kd for damping")
	}
	if r.RiseTime.OK && r.RiseTime.Value > 3 {
		out = append(out, "response is too slow: increase Kp or the output limit")
	}

	if len(out) == 0 {
		out = append(out, "gains look good; fine-tune from here")
	}
	return out
}
