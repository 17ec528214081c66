package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	invoicesGenerated metric.Int64Counter
	invoicesSkipped   metric.Int64Counter
	overdueSwept      metric.Int64Counter
	paymentsRecorded  metric.Int64Counter
	amountAllocated   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "wastebilling"
	}
	meter := provider.Meter(name)

	invoicesGenerated, err := meter.Int64Counter("wastebilling_invoices_generated_total")
	if err != nil {
		return nil, err
	}
	invoicesSkipped, err := meter.Int64Counter("wastebilling_invoices_skipped_total")
	if err != nil {
		return nil, err
	}
	overdueSwept, err := meter.Int64Counter("wastebilling_invoices_overdue_swept_total")
	if err != nil {
		return nil, err
	}
	paymentsRecorded, err := meter.Int64Counter("wastebilling_payments_recorded_total")
	if err != nil {
		return nil, err
	}
	amountAllocated, err := meter.Int64Counter("wastebilling_amount_allocated_minor_units_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesGenerated: invoicesGenerated,
		invoicesSkipped:   invoicesSkipped,
		overdueSwept:      overdueSwept,
		paymentsRecorded:  paymentsRecorded,
		amountAllocated:   amountAllocated,
	}, nil
}

// RecordInvoicesGenerated adds to the generated invoice count for a run.
func (m *Metrics) RecordInvoicesGenerated(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoicesGenerated.Add(ctx, int64(count))
}

// RecordInvoiceSkipped counts one skipped subscription by reason.
func (m *Metrics) RecordInvoiceSkipped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.invoicesSkipped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOverdueSwept adds the number of invoices flipped by a sweep.
func (m *Metrics) RecordOverdueSwept(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.overdueSwept.Add(ctx, int64(count))
}

// RecordPaymentRecorded counts one accepted payment by method.
func (m *Metrics) RecordPaymentRecorded(ctx context.Context, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("method", strings.TrimSpace(method)))
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAmountAllocated adds allocated money in minor units.
func (m *Metrics) RecordAmountAllocated(ctx context.Context, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.amountAllocated.Add(ctx, amount)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"reason":      {},
	"method":      {},
	"status":      {},
	"endpoint":    {},
	"status_code": {},
	"job":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
