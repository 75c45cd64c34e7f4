package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tesipedia/tesipedia-api/api/handlers"
	"github.com/tesipedia/tesipedia-api/config"
)

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	a := handlers.App{}
	a.Config = *config.New()

	err := a.Initialize() //initialize database, scheduler and router
	if err != nil {
		log.Fatal(err)
	}

	port := os.Getenv("PORT")
	baseURL := os.Getenv("BASE_URL")
	zap.S().Infow("tesipedia-api is up and running",
		"port", port,
		"url", baseURL,
	)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%v", port), a.Router))
}
