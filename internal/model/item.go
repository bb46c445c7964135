package model

import "strings"

// TodoItem is the domain model for a todo entry.
// ID is assigned by the document store; OwnerID never changes after creation.
type TodoItem struct {
	ID        string `json:"-"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	OwnerID   string `json:"ownerId"`
}

// Document field names as stored remotely.
const (
	FieldTitle     = "title"
	FieldCompleted = "completed"
	FieldOwnerID   = "ownerId"
)

// Collection is where todo documents live.
const Collection = "todos"

// CleanTitle trims title and reports whether anything is left.
func CleanTitle(title string) (string, bool) {
	t := strings.TrimSpace(title)
	return t, t != ""
}

// Stats counts completed and pending items.
func Stats(items []TodoItem) (done, pending int) {
	for _, it := range items {
		if it.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}
