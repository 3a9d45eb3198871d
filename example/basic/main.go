package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/siherrmann/annotator"
	"github.com/siherrmann/annotator/helper"
	"github.com/siherrmann/annotator/model"
)

var sampleSentences = []string{
	"Take two tablets of aspirin every morning.",
	"The patient was given ibuprofen after the surgery.",
	"She takes aspirin with a glass of water.",
	"Rest for a week and avoid heavy lifting.",
	"Ibuprofen relieved the swelling within hours.",
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	projectPath, err := os.MkdirTemp("", "annotator-example-*")
	if err != nil {
		log.Fatalf("Failed to create project directory: %v", err)
	}
	defer os.RemoveAll(projectPath)

	a, err := annotator.NewAnnotator(dbConfig, projectPath, 384)
	if err != nil {
		log.Fatalf("Failed to create annotator: %v", err)
	}
	defer a.Close()

	// Create a concept and load the sentences
	drug, err := a.AddConcept("DRUG", "")
	if err != nil {
		log.Fatalf("Failed to add concept: %v", err)
	}
	fmt.Printf("Created concept %s with color %s\n", drug.Name, drug.Color)

	sentences := make([]*model.Sentence, 0, len(sampleSentences))
	for _, text := range sampleSentences {
		sentence, err := a.AddSentence(text, []model.Attribute{{Name: "source", Value: "basic_example"}})
		if err != nil {
			log.Fatalf("Failed to add sentence: %v", err)
		}
		sentences = append(sentences, sentence)
	}
	fmt.Printf("Loaded %d sentences\n", len(sentences))

	// Annotate drug mentions in the first two sentences. The offsets are
	// rough on purpose, alignment snaps them to token boundaries.
	for _, seed := range []struct {
		sentence *model.Sentence
		surface  string
	}{
		{sentences[0], "aspirin"},
		{sentences[1], "ibuprofen"},
	} {
		begin := strings.Index(seed.sentence.Text, seed.surface)
		annotation, err := a.AnnotateSelection(seed.sentence.RID, drug.ID, begin+1, begin+len(seed.surface)-1)
		if err != nil {
			log.Fatalf("Failed to annotate selection: %v", err)
		}
		fmt.Printf("Annotated %q at [%d, %d)\n",
			seed.sentence.Text[annotation.Begin:annotation.End], annotation.Begin, annotation.End)
	}

	// Train the first model over the accepted annotations
	info, err := a.TrainModel(context.Background(), "round-one")
	if err != nil {
		log.Fatalf("Failed to train model: %v", err)
	}
	fmt.Printf("Trained model %s (id %d) over %d epochs, final loss %.4f\n",
		info.Name, info.ID, info.Epochs, info.Losses[len(info.Losses)-1])

	// Run the model over all sentences and store confident predictions
	count, err := a.PredictAndIngest(context.Background(), 0.5)
	if err != nil {
		log.Fatalf("Failed to ingest predictions: %v", err)
	}
	fmt.Printf("Stored %d pending predictions\n", count)

	// Review the pending predictions
	for _, sentence := range sentences {
		annotations, err := a.ListAnnotations(sentence.ID)
		if err != nil {
			log.Fatalf("Failed to list annotations: %v", err)
		}
		for _, annotation := range annotations {
			if annotation.ReviewStatus != model.ReviewStatusPending {
				continue
			}
			accepted, err := a.SetReviewStatus(annotation.RID, model.ReviewStatusAccepted)
			if err != nil {
				log.Fatalf("Failed to accept annotation: %v", err)
			}
			fmt.Printf("Accepted prediction %q in sentence %d\n",
				sentence.Text[accepted.Begin:accepted.End], sentence.ID)
		}
	}

	// Export everything that has been accepted
	fmt.Println("\nAccepted annotations as CSV:")
	if err := a.ExportAcceptedCSV(os.Stdout); err != nil {
		log.Fatalf("Failed to export: %v", err)
	}
}
