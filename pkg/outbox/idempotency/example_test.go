package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func ExampleManager_CheckAndMarkProcessed() {
	manager, _ := NewManager(newFakeStore(), 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	for i := 0; i < 2; i++ {
		already, _ := manager.CheckAndMarkProcessed(context.Background(), "order-status-bridge", eventID)
		if already {
			fmt.Println("skip redelivery")
			continue
		}
		fmt.Println("apply order status")
	}
	// Output:
	// apply order status
	// skip redelivery
}
