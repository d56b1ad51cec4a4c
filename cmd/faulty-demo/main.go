package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/ParentSquare/faulty"
	"github.com/ParentSquare/faulty/cache"
	"github.com/ParentSquare/faulty/storage"
)

var errUpstreamDown = errors.New("upstream unavailable")

func main() {
	notifier := faulty.NewEventNotifier()
	notifier.Subscribe(func(event string, payload map[string]interface{}) {
		log.Printf("faulty event: %s %v", event, payload)
	})

	backend, err := storage.AutoWire(nil, notifier, storage.NewMemoryStorage())
	if err != nil {
		log.Fatal(err)
	}

	opts, err := faulty.NewOptions(
		faulty.WithSampleThreshold(3),
		faulty.WithRateThreshold(0.5),
		faulty.WithCoolDown(2*time.Second),
		faulty.WithEvaluationWindow(10*time.Second),
		faulty.WithErrors(faulty.NewKindSet(errUpstreamDown)),
	)
	if err != nil {
		log.Fatal(err)
	}

	circuit, err := faulty.NewCircuit("demo-upstream", backend, cache.NewMemory(), notifier, opts)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 12; i++ {
		value, err := circuit.Run(ctx, "demo-key", func(context.Context) (interface{}, error) {
			if rand.Intn(3) == 0 {
				return nil, errUpstreamDown
			}
			return fmt.Sprintf("result-%d", i), nil
		})
		if err != nil {
			fmt.Printf("call %d failed: %v\n", i, err)
			continue
		}
		fmt.Printf("call %d succeeded: %v\n", i, value)
		time.Sleep(200 * time.Millisecond)
	}

	status, err := circuit.Status(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("final status: state=%s failure_rate=%.2f sample_size=%d\n",
		status.State, status.FailureRate, status.SampleSize)
}
