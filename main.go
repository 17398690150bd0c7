package main

import (
	"context"
	"fmt"

	"VideoCreator-server/config"
	"VideoCreator-server/models"
	"VideoCreator-server/routers"
	"VideoCreator-server/routers/api"
	"VideoCreator-server/service"
)

func main() {
	config.InitConfig()
	fmt.Println("Server starting on port", config.AppConfig.Server.Port)
	models.InitDB()
	fmt.Println("Database initialized")

	service.InitQueue()
	fmt.Println("Queue initialized")

	oss := service.InitMinIO()

	store := models.NewGormStore(models.GormDB)
	provider := service.NewProviderClient()
	orc := service.NewOrchestrator(store, provider, oss, config.AppConfig.Storage.WorkDir)

	processor := service.NewProcessor(orc)
	processor.Start(5)

	poller := service.NewPoller(store, provider, oss, orc,
		config.AppConfig.PollInterval(), config.AppConfig.MaxTaskAge())
	go poller.Run(context.Background())

	api.Init(orc)
	r := routers.InitRouter()
	r.Run(config.AppConfig.Server.Port)
}
