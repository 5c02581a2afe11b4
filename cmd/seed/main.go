// Command main runs the database seeder for Sophia.
package main

import (
	"flag"
	"log"

	"sophia/internal/config"
	"sophia/internal/database"
	"sophia/internal/seed"
)

func main() {
	numSchools := flag.Int("escolas", 2, "Number of schools to create")
	classesPerSchool := flag.Int("turmas", 3, "Classes per school")
	guardiansPerClass := flag.Int("responsaveis", 8, "Guardians per class")
	messagesPerChannel := flag.Int("mensagens", 25, "Messages per channel")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	opts := seed.DefaultOptions()
	opts.NumSchools = *numSchools
	opts.ClassesPerSchool = *classesPerSchool
	opts.GuardiansPerClass = *guardiansPerClass
	opts.MessagesPerChannel = *messagesPerChannel
	opts.ShouldClean = *shouldClean

	if err := seed.Run(db, opts); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}
