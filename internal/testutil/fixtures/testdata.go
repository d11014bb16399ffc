// Package fixtures holds shared test values so tests do not repeat magic
// strings.
package fixtures

import "github.com/StricklySoft/taskhub/pkg/models"

// Subjects used across service and HTTP tests.
const (
	AliceSubject = "3f0c9b7e-alice"
	BobSubject   = "8d21aa40-bob"
	AdminSubject = "c5e7d1f2-admin"
)

// Alice returns an unsaved regular user.
func Alice() models.User {
	return models.User{Subject: AliceSubject, Email: "alice@example.com", Name: "Alice", Role: models.RoleUser}
}

// Bob returns a second unsaved regular user.
func Bob() models.User {
	return models.User{Subject: BobSubject, Email: "bob@example.com", Name: "Bob", Role: models.RoleUser}
}

// Admin returns an unsaved admin user.
func Admin() models.User {
	return models.User{Subject: AdminSubject, Email: "admin@example.com", Name: "Admin", Role: models.RoleAdmin}
}

// ProjectInput returns valid input for a project called name.
func ProjectInput(name string) models.ProjectInput {
	return models.ProjectInput{Name: name, Description: "Project " + name}
}

// TaskInput returns valid TODO input for a task called title.
func TaskInput(title string) models.TaskInput {
	return models.TaskInput{Title: title, Description: "Task " + title, Status: models.TaskStatusTodo}
}

// ConfigYAML is a minimal application config file.
const ConfigYAML = `http:
  addr: ":9090"
auth:
  region: eu-west-1
  user_pool_id: eu-west-1_TestPool
store:
  driver: memory
`
