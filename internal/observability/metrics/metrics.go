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
}

// Metrics exposes application-level instruments.
type Metrics struct {
	transactions  metric.Int64Counter
	registrations metric.Int64Counter
	queueTasks    metric.Int64Counter
	queueRetries  metric.Int64Counter
	importRuns    metric.Int64Counter
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
		name = "donorsync"
	}
	meter := provider.Meter(name)

	transactions, err := meter.Int64Counter("donorsync_transactions_total")
	if err != nil {
		return nil, err
	}
	registrations, err := meter.Int64Counter("donorsync_registrations_total")
	if err != nil {
		return nil, err
	}
	queueTasks, err := meter.Int64Counter("donorsync_queue_tasks_total")
	if err != nil {
		return nil, err
	}
	queueRetries, err := meter.Int64Counter("donorsync_queue_retries_total")
	if err != nil {
		return nil, err
	}
	importRuns, err := meter.Int64Counter("donorsync_import_runs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transactions:  transactions,
		registrations: registrations,
		queueTasks:    queueTasks,
		queueRetries:  queueRetries,
		importRuns:    importRuns,
	}, nil
}

// RecordTransaction counts one reconciled payment transaction by action and outcome.
func (m *Metrics) RecordTransaction(ctx context.Context, org, action, outcome string) {
	if m == nil {
		return
	}
	m.transactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("org", strings.TrimSpace(org)),
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordRegistration counts one reconciled registration event by outcome.
func (m *Metrics) RecordRegistration(ctx context.Context, org, outcome string) {
	if m == nil {
		return
	}
	m.registrations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("org", strings.TrimSpace(org)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordQueueTask counts one dequeued task by kind and result.
func (m *Metrics) RecordQueueTask(ctx context.Context, org, kind string, ok bool) {
	if m == nil {
		return
	}
	m.queueTasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("org", strings.TrimSpace(org)),
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.Bool("ok", ok),
	))
}

// RecordQueueRetry counts one task retry.
func (m *Metrics) RecordQueueRetry(ctx context.Context, org, kind string) {
	if m == nil {
		return
	}
	m.queueRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("org", strings.TrimSpace(org)),
		attribute.String("kind", strings.TrimSpace(kind)),
	))
}

// RecordImportRun counts one importer cycle per source and result.
func (m *Metrics) RecordImportRun(ctx context.Context, org, source string, ok bool) {
	if m == nil {
		return
	}
	m.importRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("org", strings.TrimSpace(org)),
		attribute.String("source", strings.TrimSpace(source)),
		attribute.Bool("ok", ok),
	))
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
