package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GetTaskStatus is the read-only progress endpoint: callers report
// progress from here without driving the poller themselves.
// GET /v1/api/tasks/:task_id
func GetTaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")
	t, err := orc.Store.GetTask(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t})
}

// TaskProgressWebSocket pushes task status changes until the record goes
// terminal. The DB is the source of truth; the poller writes, we read.
func TaskProgressWebSocket(c *gin.Context) {
	taskID := c.Param("task_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "websocket upgrade failed"})
		return
	}
	defer conn.Close()

	t, err := orc.Store.GetTask(taskID)
	if err != nil {
		conn.WriteJSON(map[string]interface{}{"error": "task not found: " + err.Error()})
		return
	}
	_ = conn.WriteJSON(t)
	if t.Terminal() {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	prevStatus := t.Status
	prevAttempts := t.Attempts

	for range ticker.C {
		cur, err := orc.Store.GetTask(taskID)
		if err != nil {
			continue
		}
		if cur.Status != prevStatus || cur.Attempts != prevAttempts {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prevStatus = cur.Status
			prevAttempts = cur.Attempts
		}
		if cur.Terminal() {
			_ = conn.WriteJSON(cur)
			break
		}
	}
}
