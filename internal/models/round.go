package models

import "time"

// RoundMode describes how a round is conducted.
type RoundMode string

const (
	RoundModeOnline  RoundMode = "online"
	RoundModeOffline RoundMode = "offline"
	RoundModeHybrid  RoundMode = "hybrid"
)

// JobRound is one ordered stage of a job posting's selection pipeline.
// Rounds are owned by the job catalog and read-only here.
type JobRound struct {
	ID        string    `db:"id" json:"roundId"`
	JobID     string    `db:"job_id" json:"jobId"`
	Sequence  int       `db:"sequence" json:"sequence"`
	Name      string    `db:"round_name" json:"roundName"`
	Mode      RoundMode `db:"mode" json:"mode"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
