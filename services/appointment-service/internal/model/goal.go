package model

type GoalStatus string

const (
	GoalNotStarted GoalStatus = "Not Started"
	GoalInProgress GoalStatus = "In Progress"
	GoalCompleted  GoalStatus = "Completed"
)

type Goal struct {
	ID        string     `json:"id"`
	StudentID string     `json:"student_id"`
	Title     string     `json:"title"`
	Progress  int        `json:"progress"`
	Status    GoalStatus `json:"status"`
}

// GoalProgress is one progress update recorded when a session completes.
type GoalProgress struct {
	GoalID   string `json:"goal_id" validate:"required"`
	Progress int    `json:"progress" validate:"gte=0,lte=100"`
}

// StatusForProgress derives a goal status from its progress value.
func StatusForProgress(progress int) GoalStatus {
	if progress >= 100 {
		return GoalCompleted
	}
	return GoalInProgress
}
