package chaos

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rentals/internal/rental"
)

// ConcurrentRentExperiment fires concurrency simultaneous rent requests at
// the same item. Exactly one may succeed and at most one open record may
// exist for the item at any time.
func ConcurrentRentExperiment(svc rental.Service, store rental.Store, itemID int64, concurrency int) Experiment {
	var successes atomic.Int64

	openRentals := func(ctx context.Context) (float64, error) {
		records, err := store.FindAll(ctx)
		if err != nil {
			return 0, err
		}
		var open int
		for i := range records {
			if records[i].ItemID == itemID && records[i].IsOpen() {
				open++
			}
		}
		return float64(open), nil
	}

	return Experiment{
		Name:       "concurrent-rent-race-condition",
		Hypothesis: "Only one of many simultaneous rents of the same item succeeds",
		SteadyState: []Metric{
			{
				Name:      "open_rentals",
				Query:     openRentals,
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
			{
				Name: "rent_successes",
				Query: func(context.Context) (float64, error) {
					return float64(successes.Load()), nil
				},
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "rental-service",
				Parameters: map[string]any{
					"concurrency": concurrency,
					"item_id":     itemID,
				},
				Execute: func(ctx context.Context) error {
					var (
						wg       sync.WaitGroup
						mu       sync.Mutex
						failures []error
					)
					for i := 0; i < concurrency; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							_, err := svc.RentItem(ctx, itemID, "chaos")
							switch {
							case err == nil:
								successes.Add(1)
							case errors.Is(err, rental.ErrAlreadyRented), errors.Is(err, rental.ErrConflict):
							default:
								mu.Lock()
								failures = append(failures, err)
								mu.Unlock()
							}
						}()
					}
					wg.Wait()
					return errors.Join(failures...)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "return-item",
				Target: "rental-service",
				Execute: func(ctx context.Context) error {
					_, err := svc.ReturnItem(ctx, itemID)
					if errors.Is(err, rental.ErrNotRented) {
						return nil
					}
					return err
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "open_rentals",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one open rental should exist for the item",
			},
			{
				Metric:    "rent_successes",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one rent request should succeed",
			},
		},
		Duration: 3 * time.Second,
		Interval: 500 * time.Millisecond,
	}
}
