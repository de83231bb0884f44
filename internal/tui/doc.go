// Package tui is the live terminal view of a running position controller.
//
// The view shows the shaft on a braille dial together with the controller
// status and a trace of recent angles. Keys:
//
//	1-4      move to 90, 180, 270 or 360 degrees
//	0        stop (brake)
//	s        start closed-loop control
//	c        calibrate (current position becomes zero)
//	m / n    manual drive forward / reverse
//	tab      select Kp, Ki or Kd
//	up/down  scale the selected gain by ±5%
//	?        toggle help
//	q        stop and quit
package tui
