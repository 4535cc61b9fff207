package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/paul-bouzian/saycal/voiceservice"
)

func main() {
	// Optional build-target flag override (local | cloud)
	buildTarget := flag.String("build-target", "", "Override SAYCAL_BUILD_TARGET (local, cloud)")
	flag.Parse()

	// A missing .env is fine; the environment wins over it.
	_ = godotenv.Load()
	if *buildTarget != "" {
		_ = os.Setenv("SAYCAL_BUILD_TARGET", *buildTarget)
	}
	if err := voiceservice.Run(); err != nil {
		os.Exit(1)
	}
}
