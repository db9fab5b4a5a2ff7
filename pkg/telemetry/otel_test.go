package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestTelemetrySetup(t *testing.T) {
	tel, err := Setup("test-service")
	if err != nil {
		t.Fatalf("Failed to setup telemetry: %v", err)
	}

	if otel.GetMeterProvider() == nil {
		t.Error("Meter provider not set")
	}

	meter := GetMeter("test-meter")
	if meter == nil {
		t.Error("Failed to get meter")
	}

	holder := GetGlobalMetrics()
	if holder.OrdersPlacedTotal == nil {
		t.Error("Instruments not initialized")
	}

	holder.SetActiveOrders("XRP/BTC", 4)
	if got := holder.GetActiveOrders()["XRP/BTC"]; got != 4 {
		t.Errorf("Active orders = %d, want 4", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
