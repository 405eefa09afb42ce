package intercept

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tilelabel/overlay/internal/intercept"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func bg() context.Context {
	return context.Background()
}
