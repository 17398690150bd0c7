package api

import (
	"log"
	"net/http"

	"VideoCreator-server/service"

	"github.com/gin-gonic/gin"
)

func GetSegments(c *gin.Context) {
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
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "segments": segments})
}

func GetSegment(c *gin.Context) {
	segmentID := c.Param("segment_id")
	seg, err := orc.Store.GetSegment(segmentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "segment not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg})
}

// UpdateSegmentPrompt edits the prompt text and (re)enters review.
func UpdateSegmentPrompt(c *gin.Context) {
	segmentID := c.Param("segment_id")
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	seg, err := orc.SubmitPrompt(segmentID, req.Prompt)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg})
}

func ApprovePrompt(c *gin.Context) {
	segmentID := c.Param("segment_id")
	seg, err := orc.ApprovePrompt(segmentID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg})
}

func ApproveVideo(c *gin.Context) {
	segmentID := c.Param("segment_id")
	seg, err := orc.ApproveVideo(segmentID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg})
}

// RegenerateSegment discards the current video (or failure) and queues a
// fresh generation job for the already-approved prompt.
func RegenerateSegment(c *gin.Context) {
	segmentID := c.Param("segment_id")
	seg, err := orc.Regenerate(segmentID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if err := service.EnqueueSegmentGenerate(seg.ID); err != nil {
		log.Printf("regenerate enqueue failed: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"segment": seg,
			"message": "segment reset, but queueing generation failed; trigger generation again",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg, "message": "regeneration queued"})
}
