package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/example/docpipeline"
	"github.com/sicko7947/smartflow/store"
)

var documents = []docpipeline.DocumentInput{
	{DocumentID: "q3-report", Text: "ACME grew revenue in Europe. Margins held.", Lang: "en"},
	{DocumentID: "memo-fr", Text: "Réunion avec Dupont à Lyon", Lang: "fr"},
	{DocumentID: "press", Text: "Globex opened an office in Berlin. Hiring continues.", Lang: "en"},
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	orchestrator, err := docpipeline.NewOrchestrator(
		store.NewMemoryStore(),
		log.Logger.Level(zerolog.WarnLevel),
		smartflow.EngineConfig{MinExecutionsForOptimization: 5},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	ctx := context.Background()
	for round := 0; round < 3; round++ {
		for _, doc := range documents {
			result, exec, err := orchestrator.Process(ctx, doc)
			if err != nil {
				log.Error().Err(err).Str("document_id", doc.DocumentID).Msg("Document failed")
				continue
			}
			log.Info().
				Str("document_id", result.DocumentID).
				Strs("entities", result.Entities).
				Int("word_count", result.WordCount).
				Int("workflow_version", exec.WorkflowVersion).
				Int("proposals", len(exec.Optimizations)).
				Msg("Document processed")
		}
	}

	def := orchestrator.Definition()
	for _, step := range def.Steps {
		log.Info().
			Str("step", step.ID).
			Interface("config", step.Config).
			Bool("parallel", step.Parallel).
			Msg("Optimized step")
	}
	log.Info().Int("version", def.Version).Msg("Final workflow version")
}
