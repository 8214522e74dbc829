package progress

import (
	"bytes"
	"sync"
	"testing"
)

func TestTrackerConcurrentTicks(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&buf, "Auditing", 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Tick()
		}()
	}
	wg.Wait()
	tr.Done()

	if got := tr.bar.State().CurrentNum; got != 50 {
		t.Errorf("CurrentNum = %d, want 50", got)
	}
}

func TestFactory(t *testing.T) {
	if Factory(false) != nil {
		t.Error("Factory(false) should disable progress")
	}
	if Factory(true) == nil {
		t.Error("Factory(true) should return a constructor")
	}
}
