package instance

import "os"

// GetID names the running process in logs. Heroku-style DYNO wins over
// WORKER_ID; both unset yields "local".
func GetID() string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
