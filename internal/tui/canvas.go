package tui

import (
	"math"
	"strings"
)

// Braille dots, 2 wide by 4 tall per cell:
//
//	1 4
//	2 5
//	3 6
//	7 8
var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the dot at (x, y) in dot coordinates; the canvas is
// Width*2 by Height*4 dots.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= pixelMap[y%4][x%2]
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) DrawCircle(cx, cy, r int) {
	steps := 8 * r
	for i := range steps {
		th := 2 * math.Pi * float64(i) / float64(steps)
		c.Set(cx+int(math.Round(float64(r)*math.Cos(th))), cy+int(math.Round(float64(r)*math.Sin(th))))
	}
}

// polar returns the dot at radius r and compass angle deg (0 up, clockwise).
func polar(cx, cy int, r float64, deg float64) (int, int) {
	th := deg * math.Pi / 180
	return cx + int(math.Round(r*math.Sin(th))), cy - int(math.Round(r*math.Cos(th)))
}

// Dial draws the shaft at angle with a tick at target.
func (c *Canvas) Dial(angle, target float64) {
	c.Clear()
	cx, cy := c.Width, c.Height*2
	r := min(cx, cy) - 1
	c.DrawCircle(cx, cy, r)
	for deg := 0.0; deg < 360; deg += 90 {
		x0, y0 := polar(cx, cy, float64(r)-2, deg)
		x1, y1 := polar(cx, cy, float64(r), deg)
		c.DrawLine(x0, y0, x1, y1)
	}
	tx, ty := polar(cx, cy, float64(r)+2, target)
	c.Set(tx, ty)
	tx, ty = polar(cx, cy, float64(r)+3, target)
	c.Set(tx, ty)
	nx, ny := polar(cx, cy, float64(r)*0.8, angle)
	c.DrawLine(cx, cy, nx, ny)
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
