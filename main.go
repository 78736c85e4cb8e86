package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"voice-auth/db"
	"voice-auth/embedding"
	"voice-auth/storage"
	"voice-auth/utils"
	"voice-auth/voice"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

func main() {
	err := utils.CreateFolder("tmp")
	if err != nil {
		logger := utils.GetLogger()
		err := xerrors.New(err)
		ctx := context.Background()
		logger.ErrorContext(ctx, "Failed create tmp dir.", slog.Any("error", err))
	}

	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", "5000", "Port to use")
		serveCmd.Parse(os.Args[2:])
		serve(*protocol, *port)
	default:
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
}

func serve(protocol, port string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	cfg := voice.ConfigFromEnv()
	if err := utils.CreateFolder(cfg.TempDir); err != nil {
		log.Fatalf("failed to create temp dir %s: %v", cfg.TempDir, err)
	}

	mongoURI := utils.GetEnv("MONGO_URI", "mongodb://localhost:27017")
	mongoDB := utils.GetEnv("MONGO_DB", "voiceauth")
	users, err := db.NewMongoClient(ctx, mongoURI, mongoDB)
	if err != nil {
		log.Fatalf("failed to connect to user store: %v", err)
	}
	defer users.Close(ctx)

	attemptsPath := utils.GetEnv("ATTEMPTS_DB_PATH", filepath.Join("db", "attempts.db"))
	attempts, err := db.NewSQLiteClient(attemptsPath)
	if err != nil {
		log.Fatalf("failed to open attempts database: %v", err)
	}
	defer attempts.Close()

	encoderURL := utils.GetEnv("EMBEDDING_SERVICE_URL", "http://localhost:5002")
	provider := embedding.NewProvider(embedding.NewEncoderClient(encoderURL))

	// Probe eagerly so the first real request doesn't pay for encoder
	// startup. A failed probe only degrades /health; requests keep failing
	// fast with a retryable error until the encoder is restarted.
	go func() {
		if err := provider.Probe(context.Background()); err != nil {
			logger.WarnContext(context.Background(), "encoder probe failed",
				slog.String("url", encoderURL),
				slog.Any("error", xerrors.New(err)))
			return
		}
		logger.InfoContext(context.Background(), "encoder probe succeeded",
			slog.String("url", encoderURL))
	}()

	blobs := newBlobStoreFromEnv()

	service := voice.NewService(cfg, provider, users, blobs, attempts)
	augmenter := voice.NewAugmenter(cfg, provider, users)
	service.SetAugmenter(augmenter)
	defer augmenter.Wait()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/voice/enroll", newEnrollHandler(service))
	mux.HandleFunc("/api/voice/verify", newVerifyHandler(service))
	mux.HandleFunc("/api/voice/attempts", newAttemptsHandler(attempts))
	mux.HandleFunc("/health", newHealthHandler(provider))

	serveHTTP(protocol == "https", port, mux)
}

// newBlobStoreFromEnv builds the recording archive when S3 settings are
// present. Returns nil otherwise; enrollment then skips archiving.
func newBlobStoreFromEnv() voice.BlobStore {
	bucket := utils.GetEnv("S3_BUCKET", "")
	if bucket == "" {
		log.Println("S3_BUCKET not set, enrollment recordings will not be archived")
		return nil
	}

	region := utils.GetEnv("S3_REGION", "us-east-1")
	endpoint := utils.GetEnv("S3_ENDPOINT", "")
	accessKey := utils.GetEnv("S3_ACCESS_KEY", "")
	secretKey := utils.GetEnv("S3_SECRET_KEY", "")

	opts := s3.Options{
		Region:       region,
		UsePathStyle: endpoint != "", // MinIO and friends
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}
	if accessKey != "" {
		opts.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey}, nil
		})
	}

	client := s3.New(opts)
	prefix := utils.GetEnv("S3_PREFIX", "")
	baseURL := utils.GetEnv("S3_PUBLIC_URL", "")
	log.Printf("Archiving enrollment recordings to s3://%s/%s", bucket, prefix)
	return storage.NewBlobStore(client, bucket, prefix, baseURL)
}

func serveHTTP(serveHTTPS bool, port string, handler http.Handler) {
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		cert_key := utils.GetEnv("CERT_KEY", "")
		cert_file := utils.GetEnv("CERT_FILE", "")
		if cert_key == "" || cert_file == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(cert_file, cert_key); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
		return
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
