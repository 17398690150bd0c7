package routers

import (
	"VideoCreator-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	r.Static("/static", "./static")
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", api.CreateProject)
		v1.GET("/projects/:project_id", api.GetProject)
		v1.DELETE("/projects/:project_id", api.DeleteProject)
		v1.POST("/projects/:project_id/plan", api.AcceptPlan)
		v1.POST("/projects/:project_id/voice", api.CloneVoice)
		v1.POST("/projects/:project_id/generate", api.GenerateProject)
		v1.POST("/projects/:project_id/finalize", api.FinalizeProject)

		v1.GET("/projects/:project_id/segments", api.GetSegments)
		v1.GET("/segments/:segment_id", api.GetSegment)
		v1.PUT("/segments/:segment_id", api.UpdateSegmentPrompt)
		v1.POST("/segments/:segment_id/approve_prompt", api.ApprovePrompt)
		v1.POST("/segments/:segment_id/approve_video", api.ApproveVideo)
		v1.POST("/segments/:segment_id/regenerate", api.RegenerateSegment)

		v1.GET("/tasks/:task_id", api.GetTaskStatus)
	}
	r.GET("/tasks/:task_id/ws", api.TaskProgressWebSocket)
	return r
}
