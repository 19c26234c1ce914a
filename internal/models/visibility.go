package models

// Visibility controls which audience may eventually see a piece of graded output.
type Visibility string

const (
	// VisibilityHidden output is stored for staff audit only and never shown to students.
	VisibilityHidden Visibility = "hidden"
	// VisibilityVisible output is shown to the student immediately.
	VisibilityVisible Visibility = "visible"
	// VisibilityAfterDueDate output is shown once the assignment deadline passes.
	VisibilityAfterDueDate Visibility = "after_due_date"
	// VisibilityAfterPublished output is shown once grades are published.
	VisibilityAfterPublished Visibility = "after_published"
)

// Visibilities returns every tier in fan-out order.
func Visibilities() []Visibility {
	return []Visibility{VisibilityHidden, VisibilityVisible, VisibilityAfterDueDate, VisibilityAfterPublished}
}

// Valid reports whether v is one of the four known tiers.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityHidden, VisibilityVisible, VisibilityAfterDueDate, VisibilityAfterPublished:
		return true
	}
	return false
}
