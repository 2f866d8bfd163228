package models

import "time"

// Project represents one build target driven through the pipeline.
type Project struct {
	ID           string
	Name         string
	RepoURL      string
	Environments []string
	CreatedAt    time.Time
}
