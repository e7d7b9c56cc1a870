package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunKind string

const (
	RunKindHarvest   RunKind = "harvest"
	RunKindExtract   RunKind = "extract"
	RunKindPartition RunKind = "partition"
)

type ScrapeRun struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	City             string     `json:"city" db:"city"`
	Kind             RunKind    `json:"kind" db:"kind"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at" db:"finished_at"`
	Status           RunStatus  `json:"status" db:"status"`
	LinksFound       int        `json:"links_found" db:"links_found"`
	RecordsExtracted int        `json:"records_extracted" db:"records_extracted"`
	ErrorsCount      int        `json:"errors_count" db:"errors_count"`
	OutputPath       string     `json:"output_path" db:"output_path"`
}

func NewScrapeRun(city string, kind RunKind) *ScrapeRun {
	return &ScrapeRun{
		ID:        uuid.New(),
		City:      city,
		Kind:      kind,
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
	}
}

// Finish stamps the run as completed, or failed when err is non-nil.
func (r *ScrapeRun) Finish(err error) {
	now := time.Now()
	r.FinishedAt = &now
	r.Status = RunStatusCompleted
	if err != nil {
		r.Status = RunStatusFailed
	}
}
