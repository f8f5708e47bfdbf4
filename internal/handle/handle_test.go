package handle

import (
	"errors"
	"testing"
)

func TestInvoke(t *testing.T) {
	errBoom := errors.New("boom")
	testCases := []struct {
		name    string
		h       Handler[int]
		wantErr error
	}{
		{
			name: "ok",
			h:    func(int64, *int) error { return nil },
		},
		{
			name:    "error",
			h:       func(int64, *int) error { return errBoom },
			wantErr: errBoom,
		},
		{
			name:    "panic",
			h:       func(int64, *int) error { panic("kaboom") },
			wantErr: ErrPanic,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var item int
			err := Invoke(tc.h, 3, &item)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Invoke() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestEnvSlot(t *testing.T) {
	e := Env[int]{Buffer: make([]int, 4), Mask: 3}
	if e.Slot(5) != &e.Buffer[1] {
		t.Errorf("Slot(5) does not alias Buffer[1]")
	}
	if e.Slot(-1) != &e.Buffer[3] {
		t.Errorf("Slot(-1) does not alias Buffer[3]")
	}
}
