package dto

import "socialops/domain/model"

// MetricsRunSummary aggregates one refresh or backfill run. Processed counts
// every unit attempted.
type MetricsRunSummary struct {
	Processed int `json:"processed"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

// TargetMetrics is a publication target with its most recent observation.
// Latest is nil until the first refresh.
type TargetMetrics struct {
	Target *model.PublicationTarget `json:"target"`
	Latest *model.MetricSnapshot    `json:"latest,omitempty"`
}
