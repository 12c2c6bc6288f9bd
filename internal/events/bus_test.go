package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPublishSync_DeliveryOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(EventStepStarted, func(Event) error {
		order = append(order, "specific-1")
		return nil
	})
	bus.Subscribe(EventStepStarted, func(Event) error {
		order = append(order, "specific-2")
		return nil
	})
	bus.SubscribeAll(func(Event) error {
		order = append(order, "wildcard")
		return nil
	})

	bus.PublishSync(New(EventStepStarted, nil, "test"))

	want := []string{"specific-1", "specific-2", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestFailingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	secondInvoked := false
	bus.Subscribe(EventStepFailed, func(Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(EventStepFailed, func(Event) error {
		secondInvoked = true
		return nil
	})

	bus.PublishSync(New(EventStepFailed, nil, "test"))

	if !secondInvoked {
		t.Error("second handler should run despite first handler failing")
	}
	if n := len(bus.DeadLetters()); n != 1 {
		t.Errorf("expected exactly one dead letter, got %d", n)
	}
}

func TestPanickingHandlerGoesToDeadLetters(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(EventCodeGenerated, func(Event) error {
		panic("handler bug")
	})

	bus.PublishSync(New(EventCodeGenerated, nil, "test"))

	dead := bus.DeadLetters()
	if len(dead) != 1 || dead[0].Type != EventCodeGenerated {
		t.Fatalf("expected the panicking event dead-lettered once, got %v", dead)
	}
}

func TestBackgroundDelivery(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var got []EventType
	bus.SubscribeAll(func(e Event) error {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
		return nil
	})

	bus.Start()
	defer bus.Stop(time.Second)

	for i := 0; i < 5; i++ {
		if err := bus.Publish(New(EventMissionStarted, nil, "test")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 5 deliveries, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopDrainsQueue(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	delivered := 0
	bus.SubscribeAll(func(Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	bus.Start()
	for i := 0; i < 20; i++ {
		_ = bus.Publish(New(EventFileModified, nil, "test"))
	}
	bus.Stop(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if delivered != 20 {
		t.Errorf("expected all 20 events drained on stop, got %d", delivered)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	bus := NewBus()
	bus.Start()
	bus.Start()
	bus.Stop(time.Second)
	bus.Stop(time.Second)

	if err := bus.Publish(New(EventSystemStopped, nil, "test")); err == nil {
		t.Error("expected publish on stopped bus to fail")
	}
}

func TestPublishConcurrentWithStop(t *testing.T) {
	for i := 0; i < 200; i++ {
		bus := NewBus()
		bus.SubscribeAll(func(Event) error { return nil })
		bus.Start()

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					if err := bus.Publish(New(EventStepStarted, nil, "test")); err != nil {
						return
					}
				}
			}()
		}

		bus.Stop(time.Second)
		wg.Wait()
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	token := bus.Subscribe(EventTestPassed, func(Event) error {
		calls++
		return nil
	})

	bus.PublishSync(New(EventTestPassed, nil, "test"))
	bus.Unsubscribe(token)
	bus.PublishSync(New(EventTestPassed, nil, "test"))

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
}
