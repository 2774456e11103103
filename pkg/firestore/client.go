// Package firestore wraps the Firebase Admin SDK for anchor-batch
// publication and mirroring, behind an enabled/no-op toggle with
// environment-driven defaults, writing to the one collection this
// ledger needs: anchor_publications.
package firestore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Client wraps the Firestore client with anchor-publication semantics.
type Client struct {
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	logger    *log.Logger
	enabled   bool
	mu        sync.RWMutex
}

// Config holds connection parameters for the Firestore client.
type Config struct {
	ProjectID       string
	CredentialsFile string
	// Enabled controls whether Firestore operations run at all; when
	// false every Client method is a logged no-op, for local development
	// and tests that don't want live GCP credentials.
	Enabled bool
	Logger  *log.Logger
}

// DefaultConfig builds a Config from environment variables.
func DefaultConfig() Config {
	return Config{
		ProjectID:       os.Getenv("FIRESTORE_PROJECT_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Enabled:         os.Getenv("FIRESTORE_ENABLED") == "true",
		Logger:          log.New(os.Stdout, "[firestore] ", log.LstdFlags),
	}
}

// NewClient connects to Firestore, or returns a no-op client if cfg.Enabled
// is false.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[firestore] ", log.LstdFlags)
	}
	client := &Client{projectID: cfg.ProjectID, logger: cfg.Logger, enabled: cfg.Enabled}

	if !cfg.Enabled {
		cfg.Logger.Println("firestore sync disabled, running in no-op mode")
		return client, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore: project id required when enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: init firebase app: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore: init client: %w", err)
	}

	client.app = app
	client.firestore = fsClient
	cfg.Logger.Printf("firestore client initialized for project %s", cfg.ProjectID)
	return client, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

// IsEnabled reports whether the client performs real Firestore writes.
func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// anchorPublicationDoc is the document shape written to
// anchor_publications/{batch_id}, mirroring an anchored Merkle root for
// verifiers who query Firestore directly instead of re-exporting a
// bundle.
type anchorPublicationDoc struct {
	BatchID       string    `firestore:"batchId"`
	StartSequence uint64    `firestore:"startSequence"`
	EndSequence   uint64    `firestore:"endSequence"`
	MerkleRoot    string    `firestore:"merkleRoot"`
	ExternalRef   string    `firestore:"externalRef"`
	PublishedAt   time.Time `firestore:"publishedAt"`
}

// PublishAnchor writes an anchor_publications document for batchID. A
// disabled client logs and returns nil rather than erroring, so a
// deployment with Firestore unconfigured still anchors locally.
func (c *Client) PublishAnchor(ctx context.Context, batchID, externalRef, merkleRoot string, startSeq, endSeq uint64) error {
	if !c.IsEnabled() {
		c.logger.Printf("firestore disabled, skipping anchor publication for batch %s", batchID)
		return nil
	}
	if c.firestore == nil {
		return fmt.Errorf("firestore: client not initialized")
	}

	doc := anchorPublicationDoc{
		BatchID:       batchID,
		StartSequence: startSeq,
		EndSequence:   endSeq,
		MerkleRoot:    merkleRoot,
		ExternalRef:   externalRef,
		PublishedAt:   time.Now().UTC(),
	}
	_, err := c.firestore.Collection("anchor_publications").Doc(batchID).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore: write anchor publication: %w", err)
	}
	c.logger.Printf("published anchor batch %s root=%s", batchID, merkleRoot)
	return nil
}

// Health checks connectivity; a disabled client is always healthy.
func (c *Client) Health(ctx context.Context) error {
	if !c.IsEnabled() {
		return nil
	}
	if c.firestore == nil {
		return fmt.Errorf("firestore: client not initialized")
	}
	_, err := c.firestore.Collection("_health_check").Doc("ping").Get(ctx)
	if err != nil && status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}
