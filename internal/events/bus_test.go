package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StateChangedEvent, 1)

	unsub := bus.Subscribe(func(e StateChangedEvent) {
		received <- e
	})
	defer unsub()

	event := StateChangedEvent{
		IsInitialized: true,
		Orientation:   90,
		Shader:        "sepia",
		Timestamp:     "2026-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got != event {
		t.Errorf("received = %+v, want %+v", got, event)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan RecordingFinishedEvent, 1)
	received2 := make(chan RecordingFinishedEvent, 1)

	unsub1 := bus.Subscribe(func(e RecordingFinishedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e RecordingFinishedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(RecordingFinishedEvent{ID: "rec-1", Path: "/tmp/rec-1.mp4"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan UserErrorEvent, 1)

	unsub := bus.Subscribe(func(e UserErrorEvent) {
		received <- e
	})

	bus.Publish(UserErrorEvent{Kind: "output_not_found"})
	<-received

	unsub()

	bus.Publish(UserErrorEvent{Kind: "encoder_shutdown"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	photoReceived := make(chan bool, 1)
	shaderReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ PhotoCapturedEvent) {
		photoReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ ShaderChangedEvent) {
		shaderReceived <- true
	})
	defer unsub2()

	bus.Publish(PhotoCapturedEvent{ID: "photo-1"})
	<-photoReceived

	select {
	case <-shaderReceived:
		t.Fatal("Shader subscriber should NOT have received PhotoCapturedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(ShaderChangedEvent{Shader: "invert", Source: "api"})
	<-shaderReceived

	select {
	case <-photoReceived:
		t.Fatal("Photo subscriber should NOT have received ShaderChangedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ PipelineMetricsEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(PipelineMetricsEvent{EventType: "pipeline_metrics"})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"StateChanged", StateChangedEvent{IsInitialized: true}},
		{"RecordingFinished", RecordingFinishedEvent{ID: "rec"}},
		{"PhotoCaptured", PhotoCapturedEvent{ID: "photo"}},
		{"UserError", UserErrorEvent{Kind: "encoder_shutdown"}},
		{"ShaderChanged", ShaderChangedEvent{Shader: "noise"}},
		{"PipelineMetrics", PipelineMetricsEvent{EventType: "pipeline_metrics"}},
		{"LogEntry", LogEntryEvent{Seq: 1, Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case StateChangedEvent:
				unsub = bus.Subscribe(func(e StateChangedEvent) { received <- e })
			case RecordingFinishedEvent:
				unsub = bus.Subscribe(func(e RecordingFinishedEvent) { received <- e })
			case PhotoCapturedEvent:
				unsub = bus.Subscribe(func(e PhotoCapturedEvent) { received <- e })
			case UserErrorEvent:
				unsub = bus.Subscribe(func(e UserErrorEvent) { received <- e })
			case ShaderChangedEvent:
				unsub = bus.Subscribe(func(e ShaderChangedEvent) { received <- e })
			case PipelineMetricsEvent:
				unsub = bus.Subscribe(func(e PipelineMetricsEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_UnknownHandlerIsNoop(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestStateChangedEvent_JSON(t *testing.T) {
	data, err := json.Marshal(StateChangedEvent{RecordingStarted: true, ElapsedTime: "00:03", Orientation: 270})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if result["elapsed_time"] != "00:03" {
		t.Errorf("elapsed_time = %v, want 00:03", result["elapsed_time"])
	}
	if result["orientation"] != float64(270) {
		t.Errorf("orientation = %v, want 270", result["orientation"])
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[PhotoCapturedEvent](bus, ch)
	defer unsub()

	event := PhotoCapturedEvent{ID: "photo-7", Width: 1080, Height: 1920}
	bus.Publish(event)

	received := <-ch
	got, ok := received.(PhotoCapturedEvent)
	if !ok {
		t.Fatalf("Expected PhotoCapturedEvent, got %T", received)
	}
	if got != event {
		t.Errorf("received = %+v, want %+v", got, event)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[StateChangedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(StateChangedEvent{})
		done <- true
	}()

	<-done
}

func TestSubscribeToChannel_SharedChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsubState := SubscribeToChannel[StateChangedEvent](bus, ch)
	defer unsubState()
	unsubPhoto := SubscribeToChannel[PhotoCapturedEvent](bus, ch)
	defer unsubPhoto()

	// A full channel drops the event instead of blocking the publisher.
	ch <- "backlog"
	bus.Publish(PhotoCapturedEvent{ID: "dropped"})
	time.Sleep(50 * time.Millisecond)
	if got := <-ch; got != "backlog" {
		t.Errorf("received = %+v, want backlog", got)
	}
	select {
	case got := <-ch:
		t.Errorf("received %+v, want it dropped", got)
	case <-time.After(20 * time.Millisecond):
	}

	// Both subscriptions deliver into the same channel.
	bus.Publish(StateChangedEvent{Shader: "sepia"})
	select {
	case got := <-ch:
		if e, ok := got.(StateChangedEvent); !ok || e.Shader != "sepia" {
			t.Errorf("received = %+v, want state event", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for state event")
	}
	bus.Publish(PhotoCapturedEvent{ID: "kept"})
	select {
	case got := <-ch:
		if e, ok := got.(PhotoCapturedEvent); !ok || e.ID != "kept" {
			t.Errorf("received = %+v, want photo event", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for photo event")
	}
}

func TestTrySend(t *testing.T) {
	ch := make(chan any, 1)
	if !trySend(ch, 1) {
		t.Error("trySend() on empty channel = false, want true")
	}
	if trySend(ch, 2) {
		t.Error("trySend() on full channel = true, want false")
	}
}
