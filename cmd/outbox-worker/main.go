package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/paul-bouzian/saycal/outboxworker"
)

func main() {
	_ = godotenv.Load()
	if err := outboxworker.Run(); err != nil {
		os.Exit(1)
	}
}
