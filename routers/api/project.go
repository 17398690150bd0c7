package api

import (
	"errors"
	"log"
	"net/http"

	"VideoCreator-server/models"
	"VideoCreator-server/service"

	"github.com/gin-gonic/gin"
)

var orc *service.Orchestrator

// Init wires the handlers to the orchestrator. Called once from main.
func Init(o *service.Orchestrator) {
	orc = o
}

// statusFor maps the pipeline's failure taxonomy onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrNoCapacity),
		errors.Is(err, service.ErrVoiceNotReady):
		return http.StatusConflict
	case errors.Is(err, service.ErrProviderRejected),
		errors.Is(err, service.ErrIncompleteSegments):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func CreateProject(c *gin.Context) {
	var req struct {
		Owner          string `json:"owner"`
		Title          string `json:"title"`
		VoiceSampleURL string `json:"voice_sample_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	project, err := orc.CreateProject(req.Owner, req.Title, req.VoiceSampleURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func GetProject(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := orc.Store.GetProject(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found: " + err.Error()})
		return
	}
	segments, err := orc.Store.SegmentsByProject(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project, "segments": segments})
}

func DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")
	if _, err := orc.Store.GetProject(projectID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found: " + err.Error()})
		return
	}
	if err := orc.Store.DeleteProject(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete project: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": projectID})
}

// AcceptPlan takes the plan generator's shot list and creates the
// project's segments from it.
func AcceptPlan(c *gin.Context) {
	projectID := c.Param("project_id")
	var req struct {
		Shots []service.PlanShot `json:"shots"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	segments, err := orc.ApplyPlan(projectID, req.Shots)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "segments": segments})
}

// CloneVoice queues the project-scoped voice clone submission.
func CloneVoice(c *gin.Context) {
	projectID := c.Param("project_id")
	if _, err := orc.Store.GetProject(projectID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found: " + err.Error()})
		return
	}
	if err := service.EnqueueVoiceClone(projectID); err != nil {
		log.Printf("voice clone enqueue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue voice clone: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"project_id": projectID, "message": "voice clone queued"})
}

// GenerateProject queues submission of every approved segment.
func GenerateProject(c *gin.Context) {
	projectID := c.Param("project_id")
	if _, err := orc.Store.GetProject(projectID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found: " + err.Error()})
		return
	}
	if err := service.EnqueueProjectGenerate(projectID); err != nil {
		log.Printf("generate enqueue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue generation: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"project_id": projectID, "message": "generation queued"})
}

// FinalizeProject queues concatenation of the approved segments.
func FinalizeProject(c *gin.Context) {
	projectID := c.Param("project_id")
	if _, err := orc.Store.GetProject(projectID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found: " + err.Error()})
		return
	}
	segments, err := orc.Store.SegmentsByProject(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Cheap precondition check up front so the caller gets the offending
	// segment immediately instead of via the project's error field.
	if len(segments) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": service.ErrIncompleteSegments.Error() + ": project has no segments",
		})
		return
	}
	for _, seg := range segments {
		if seg.State != models.SegmentStateVideoApproved {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   service.ErrIncompleteSegments.Error(),
				"segment": seg.ID,
				"state":   seg.State,
			})
			return
		}
	}
	if err := service.EnqueueFinalize(projectID); err != nil {
		log.Printf("finalize enqueue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue finalize: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"project_id": projectID, "message": "finalize queued"})
}
