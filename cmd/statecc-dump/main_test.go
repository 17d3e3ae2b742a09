package main

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/statecc"
)

type sizeCase struct {
	name          string
	width, height uint
	want          [2]uint32
	wantErr       bool
}

func TestFramebufferSize(t *testing.T) {
	tests := []sizeCase{
		{"default", 640, 480, [2]uint32{640, 480}, false},
		{"largest", statecc.MaxFramebufferSize, statecc.MaxFramebufferSize,
			[2]uint32{statecc.MaxFramebufferSize, statecc.MaxFramebufferSize}, false},
		{"zero width", 0, 480, [2]uint32{}, true},
		{"too tall", 640, statecc.MaxFramebufferSize + 1, [2]uint32{}, true},
	}
	// 640 plus 2^32 would narrow to a valid width.
	if wide := uint(math.MaxUint32); wide+1 != 0 {
		tests = append(tests, sizeCase{"wraps 32 bits", wide + 641, 480, [2]uint32{}, true})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := framebufferSize(tt.width, tt.height)
			if tt.wantErr {
				if !errors.Is(err, errFramebufferSize) {
					t.Errorf("err = %v, want errFramebufferSize", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("framebufferSize = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}
