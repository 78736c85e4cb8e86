package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"voice-auth/embedding"
	"voice-auth/utils"
	"voice-auth/voice"
	"voice-auth/wavio"

	"github.com/joho/godotenv"
)

// Sanity check for a running encoder: condition a WAV file, embed it twice
// and confirm the pipeline produces a near-perfect self-similarity.
func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: selfcheck <file.wav> [file2.wav ...]")
		os.Exit(1)
	}

	encoderURL := utils.GetEnv("EMBEDDING_SERVICE_URL", "http://localhost:5002")
	provider := embedding.NewProvider(embedding.NewEncoderClient(encoderURL))

	ctx := context.Background()
	if err := provider.Probe(ctx); err != nil {
		log.Fatalf("Encoder probe failed (%s): %v", encoderURL, err)
	}
	fmt.Printf("Encoder at %s is available\n\n", encoderURL)

	cfg := voice.DefaultConditionerConfig()

	fmt.Println("=== Self-Similarity Check ===")
	fmt.Println("The same file embedded twice should score ~1.00")
	fmt.Println()

	for _, path := range os.Args[1:] {
		fmt.Printf("Testing: %s\n", path)

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("  ERROR: %v\n", err)
			continue
		}

		clip, err := wavio.Decode(data)
		if err != nil {
			log.Printf("  ERROR: %v\n", err)
			continue
		}

		signal, err := voice.Condition(clip, cfg)
		if err != nil {
			log.Printf("  ERROR: %v\n", err)
			continue
		}

		first, err := provider.Embed(ctx, signal)
		if err != nil {
			log.Printf("  ERROR: %v\n", err)
			continue
		}
		second, err := provider.Embed(ctx, signal)
		if err != nil {
			log.Printf("  ERROR: %v\n", err)
			continue
		}

		score := voice.CosineSimilarity(first, second)
		marker := "OK "
		if score < 0.99 {
			marker = "LOW"
		}
		fmt.Printf("  [%s] self-similarity=%.4f dimension=%d duration=%.2fs\n\n",
			marker, score, len(first), signal.Duration())
	}

	fmt.Println("A score below 0.99 means the encoder is not deterministic")
	fmt.Println("for identical input; check its version and configuration.")
}
