package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjcreations/storefront/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSetupNone(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Exporter: ExporterNone}, "test", quietLogger())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TelemetryConfig{Exporter: "zipkin"}, "test", quietLogger())
	assert.Error(t, err)
}

func TestStdoutExporterWritesSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var out bytes.Buffer
	shutdown, err := setup(context.Background(), config.TelemetryConfig{
		Exporter:    ExporterStdout,
		ServiceName: "storefront-test",
	}, "test", &out, quietLogger())
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "orders.Create")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), `"Name":"orders.Create"`)
	assert.Contains(t, out.String(), "storefront-test")
}
