package model

import (
	"math"
	"testing"
)

func TestNewPosition(t *testing.T) {
	tests := []struct {
		name    string
		x, y, z float32
		o       float32
		want    Position
	}{
		{
			name: "zero values",
			want: Position{},
		},
		{
			name: "positive coordinates",
			x:    100, y: 200, z: 300, o: 1,
			want: Position{X: 100, Y: 200, Z: 300, O: 1},
		},
		{
			name: "negative orientation wraps",
			x:    -100, y: -200, z: -300, o: -math.Pi,
			want: Position{X: -100, Y: -200, Z: -300, O: math.Pi},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPosition(tt.x, tt.y, tt.z, tt.o)
			if got.X != tt.want.X || got.Y != tt.want.Y || got.Z != tt.want.Z {
				t.Errorf("NewPosition() = %+v; want %+v", got, tt.want)
			}
			if math.Abs(float64(got.O-tt.want.O)) > 1e-5 {
				t.Errorf("NewPosition().O = %v; want %v", got.O, tt.want.O)
			}
		})
	}
}

func TestPosition_Distance(t *testing.T) {
	a := NewPosition(0, 0, 0, 0)
	b := NewPosition(3, 4, 12, 0)

	if got := a.Distance2DSquared(b); got != 25 {
		t.Errorf("Distance2DSquared() = %v; want 25", got)
	}
	if got := a.Distance3DSquared(b); got != 169 {
		t.Errorf("Distance3DSquared() = %v; want 169", got)
	}
}

func TestPosition_IsValid(t *testing.T) {
	tests := []struct {
		name string
		pos  Position
		want bool
	}{
		{"origin", Position{}, true},
		{"edge", Position{X: MapHalfSize - 1, Y: -MapHalfSize + 1}, true},
		{"outside x", Position{X: MapHalfSize + 10}, false},
		{"nan", Position{Y: float32(math.NaN())}, false},
		{"inf", Position{Z: float32(math.Inf(1))}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v; want %v", got, tt.want)
			}
		})
	}
}
