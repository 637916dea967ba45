package workflow

import (
	"fmt"
	"testing"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe(4)
	b, cancelB := bus.Subscribe(4)
	defer cancelA()
	defer cancelB()

	bus.Publish(protocol.StepEvent{StepID: "plan"})

	for name, ch := range map[string]<-chan protocol.StepEvent{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.StepID != "plan" {
				t.Errorf("subscriber %s got step %q", name, ev.StepID)
			}
		default:
			t.Errorf("subscriber %s received nothing", name)
		}
	}
}

func TestBus_SlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(2)
	defer cancel()

	for i := 0; i < 5; i++ {
		bus.Publish(protocol.StepEvent{StepID: fmt.Sprintf("s%d", i)})
	}

	// Buffer of 2 should hold the two newest events.
	first := <-ch
	second := <-ch
	if first.StepID != "s3" || second.StepID != "s4" {
		t.Errorf("buffered events = %s, %s; want s3, s4", first.StepID, second.StepID)
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(protocol.StepEvent{StepID: "late"})
	cancel()
}
