package signal

import (
	"testing"
	"time"
)

func TestControllerPingPeriod(t *testing.T) {
	ctl := NewSignalWSController(nil, nil, 0, 0, 0, 0)
	if ctl.pingPeriod != 54*time.Second {
		t.Fatalf("default pingPeriod = %v", ctl.pingPeriod)
	}

	ctl = NewSignalWSController(nil, nil, 0, 20*time.Second, 3, 30*time.Second)
	if ctl.pingPeriod != 20*time.Second {
		t.Fatalf("pingPeriod = %v, want configured 20s", ctl.pingPeriod)
	}
}
