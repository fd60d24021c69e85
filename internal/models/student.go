package models

// StudentRef is a directory hit scoped to one job: the student and their application for it.
type StudentRef struct {
	StudentID     string `db:"student_id" json:"studentId"`
	ApplicationID string `db:"application_id" json:"applicationId"`
	Email         string `db:"email" json:"email"`
	RollNo        string `db:"roll_no" json:"rollNo"`
}

// RosterRecord joins an application with the directory fields used on exported rosters.
type RosterRecord struct {
	Application
	Email  string `db:"email"`
	RollNo string `db:"roll_no"`
}
