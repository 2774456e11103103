// Command ledgerd runs the ledger service's HTTP server and exposes a
// handful of operator subcommands (verify-chain, rebuild-projections,
// export-events, create-genesis-editor, mark-recovered, verify-proof)
// that act directly on the configured store without going through
// HTTP. A leading subcommand argument is parsed before delegating to a
// dedicated flag.NewFlagSet for that subcommand. verify-proof is the
// one exception that touches neither store nor config: it checks an
// exported inclusion proof offline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/anchor"
	"github.com/accountabilityme/ledger/pkg/bundle"
	"github.com/accountabilityme/ledger/pkg/config"
	"github.com/accountabilityme/ledger/pkg/dbclient"
	"github.com/accountabilityme/ledger/pkg/ethereum"
	"github.com/accountabilityme/ledger/pkg/eventstore"
	"github.com/accountabilityme/ledger/pkg/firestore"
	"github.com/accountabilityme/ledger/pkg/ledgerservice"
	"github.com/accountabilityme/ledger/pkg/projector"
	"github.com/accountabilityme/ledger/pkg/query"
	"github.com/accountabilityme/ledger/pkg/server"
	"github.com/accountabilityme/ledger/pkg/signer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ledgerd <serve|verify-chain|rebuild-projections|export-events|create-genesis-editor|mark-recovered|verify-proof> [flags]")
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		runServe(args)
	case "verify-chain":
		runVerifyChain(args)
	case "rebuild-projections":
		runRebuildProjections(args)
	case "export-events":
		runExportEvents(args)
	case "create-genesis-editor":
		runCreateGenesisEditor(args)
	case "mark-recovered":
		runMarkRecovered(args)
	case "verify-proof":
		runVerifyProof(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", cmd)
		os.Exit(2)
	}
}

// stack bundles every long-lived component a subcommand might need, so
// each subcommand only picks out what it uses.
type stack struct {
	cfg       *config.Config
	store     eventstore.EventStore
	proj      *projector.Projector
	keys      *ledgerservice.InMemoryKeyProvider
	ledger    *ledgerservice.Service
	query     *query.Layer
	bundle    *bundle.Exporter
	anchorSvc *anchor.Service
	dbClient  *dbclient.Client
}

func buildStack(ctx context.Context, configPath string) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	proj := projector.New(nil)

	var store eventstore.EventStore
	var dbClient *dbclient.Client

	switch cfg.Database.Backend {
	case "postgres":
		dbClient, err = dbclient.NewClient(dbclient.Config{
			DatabaseURL:     cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime.Duration(),
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Duration(),
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := dbClient.MigrateUp(ctx); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		mirror := dbclient.NewProjectionMirror(dbClient)
		proj = projector.New(mirror)
		store = eventstore.NewPostgresStore(dbClient, proj.Registry.PublicKey)
	default:
		store = eventstore.NewMemoryStore(proj.Registry.PublicKey)
	}

	keys, err := loadKeyProvider(cfg)
	if err != nil {
		return nil, err
	}

	ledger := ledgerservice.New(store, proj, keys)
	if err := ledger.RebuildProjections(ctx); err != nil {
		return nil, fmt.Errorf("replay event log into projections: %w", err)
	}
	queryLayer := query.New(store, proj)
	exporter := bundle.New(store, proj)

	var anchorSvc *anchor.Service
	if cfg.Anchor.Enabled {
		var persister anchor.Persister
		if dbClient != nil {
			persister = dbclient.NewAnchorPersister(dbClient)
		}
		witness, err := buildWitness(ctx, cfg)
		if err != nil {
			return nil, err
		}
		anchorSvc = anchor.New(store, persister, witness, anchor.Config{
			CheckInterval: cfg.Anchor.CheckInterval.Duration(),
			SizeThreshold: cfg.Anchor.SizeThreshold,
			MaxAge:        cfg.Anchor.MaxAge.Duration(),
		})
	}

	return &stack{
		cfg: cfg, store: store, proj: proj, keys: keys, ledger: ledger,
		query: queryLayer, bundle: exporter, anchorSvc: anchorSvc, dbClient: dbClient,
	}, nil
}

func loadKeyProvider(cfg *config.Config) (*ledgerservice.InMemoryKeyProvider, error) {
	if cfg.Keys.SystemPrivateKeyPath == "" {
		log.Printf("ledgerd: no system_private_key_path configured, generating an ephemeral system key")
		return ledgerservice.NewInMemoryKeyProvider(nil), nil
	}
	raw, err := os.ReadFile(cfg.Keys.SystemPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read system private key: %w", err)
	}
	kp, err := signer.KeyPairFromPrivateBase64(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse system private key: %w", err)
	}
	return ledgerservice.NewInMemoryKeyProvider(kp.PrivateKey), nil
}

func buildWitness(ctx context.Context, cfg *config.Config) (anchor.Witness, error) {
	switch cfg.Anchor.Witness {
	case "ethereum":
		client, err := ethereum.NewClient(cfg.Anchor.Ethereum.RPCURL, cfg.Anchor.Ethereum.ChainID)
		if err != nil {
			return nil, fmt.Errorf("connect ethereum witness: %w", err)
		}
		priv, err := crypto.HexToECDSA(cfg.Anchor.Ethereum.PrivateKeyHex)
		if err != nil {
			return nil, fmt.Errorf("parse ethereum private key: %w", err)
		}
		return anchor.NewEthereumWitness(client, priv), nil
	case "firestore":
		fsClient, err := firestore.NewClient(ctx, firestore.Config{
			ProjectID:       cfg.Anchor.Firestore.ProjectID,
			CredentialsFile: cfg.Anchor.Firestore.CredentialsFile,
			Enabled:         cfg.Anchor.Firestore.Enabled,
		})
		if err != nil {
			return nil, fmt.Errorf("connect firestore witness: %w", err)
		}
		return anchor.NewFirestoreWitness(fsClient), nil
	default:
		return nil, nil
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "ledgerd.yaml", "path to the YAML configuration file")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, *configPath)
	if err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
	if st.dbClient != nil {
		defer st.dbClient.Close()
	}

	if st.anchorSvc != nil {
		if err := st.anchorSvc.Start(ctx); err != nil {
			log.Fatalf("ledgerd: start anchor service: %v", err)
		}
		defer st.anchorSvc.Stop()
	}

	go runIntegrityLoop(ctx, st)

	srv := server.New(st.ledger, st.query, st.bundle, st.anchorSvc)
	httpServer := &http.Server{Addr: st.cfg.Server.ListenAddr, Handler: srv}

	go func() {
		log.Printf("ledgerd: listening on %s", st.cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ledgerd: http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("ledgerd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("ledgerd: graceful shutdown failed: %v", err)
	}
}

// runIntegrityLoop performs the background half of the integrity
// verification operation ("offered as a background and
// on-demand operation"), refreshing the query layer's cached status on
// every tick so get_integrity never serves a stale "valid" default
// forever on a server that nobody happens to poll with verify-chain.
func runIntegrityLoop(ctx context.Context, st *stack) {
	interval := st.cfg.Integrity.CheckInterval.Duration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := st.ledger.VerifyChain(ctx)
			if err != nil {
				log.Printf("ledgerd: background integrity check: %v", err)
				continue
			}
			st.query.SetIntegrity(status)
		}
	}
}

func runVerifyChain(args []string) {
	fs := flag.NewFlagSet("verify-chain", flag.ExitOnError)
	configPath := fs.String("config", "ledgerd.yaml", "path to the YAML configuration file")
	fs.Parse(args)

	ctx := context.Background()
	st, err := buildStack(ctx, *configPath)
	if err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
	if st.dbClient != nil {
		defer st.dbClient.Close()
	}

	status, err := st.ledger.VerifyChain(ctx)
	if err != nil {
		log.Fatalf("ledgerd: verify chain: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(status)
	if !status.Valid {
		os.Exit(1)
	}
}

// runMarkRecovered clears a corruption-triggered write suspension, but
// only after a fresh chain verification confirms the chain is sound
// again: a detected corruption is fatal to writes until an operator
// explicitly clears it.
func runMarkRecovered(args []string) {
	fs := flag.NewFlagSet("mark-recovered", flag.ExitOnError)
	configPath := fs.String("config", "ledgerd.yaml", "path to the YAML configuration file")
	fs.Parse(args)

	ctx := context.Background()
	st, err := buildStack(ctx, *configPath)
	if err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
	if st.dbClient != nil {
		defer st.dbClient.Close()
	}

	status, err := st.ledger.MarkRecovered(ctx)
	if err != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(status)
		log.Fatalf("ledgerd: mark recovered: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(status)
	log.Println("ledgerd: ledger marked recovered")
}

func runRebuildProjections(args []string) {
	fs := flag.NewFlagSet("rebuild-projections", flag.ExitOnError)
	configPath := fs.String("config", "ledgerd.yaml", "path to the YAML configuration file")
	fs.Parse(args)

	ctx := context.Background()
	st, err := buildStack(ctx, *configPath)
	if err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
	if st.dbClient != nil {
		defer st.dbClient.Close()
	}

	if err := st.ledger.RebuildProjections(ctx); err != nil {
		log.Fatalf("ledgerd: rebuild projections: %v", err)
	}
	log.Println("ledgerd: projections rebuilt")
}

func runExportEvents(args []string) {
	fs := flag.NewFlagSet("export-events", flag.ExitOnError)
	configPath := fs.String("config", "ledgerd.yaml", "path to the YAML configuration file")
	claimIDRaw := fs.String("claim-id", "", "claim_id to export a bundle for")
	fs.Parse(args)

	if *claimIDRaw == "" {
		log.Fatal("ledgerd: -claim-id is required")
	}
	claimID, err := uuid.Parse(*claimIDRaw)
	if err != nil {
		log.Fatalf("ledgerd: invalid -claim-id: %v", err)
	}

	ctx := context.Background()
	st, err := buildStack(ctx, *configPath)
	if err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
	if st.dbClient != nil {
		defer st.dbClient.Close()
	}

	integrity, err := st.ledger.VerifyChain(ctx)
	if err != nil {
		log.Fatalf("ledgerd: verify chain: %v", err)
	}

	b, err := st.bundle.Export(ctx, claimID, integrity.Valid)
	if err != nil {
		log.Fatalf("ledgerd: export bundle: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(b)
}

func runCreateGenesisEditor(args []string) {
	fs := flag.NewFlagSet("create-genesis-editor", flag.ExitOnError)
	configPath := fs.String("config", "ledgerd.yaml", "path to the YAML configuration file")
	username := fs.String("username", "", "username for the genesis editor")
	displayName := fs.String("display-name", "", "display name for the genesis editor")
	fs.Parse(args)

	if *username == "" {
		log.Fatal("ledgerd: -username is required")
	}

	ctx := context.Background()
	st, err := buildStack(ctx, *configPath)
	if err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
	if st.dbClient != nil {
		defer st.dbClient.Close()
	}

	if len(st.proj.Registry.All()) > 0 {
		log.Fatal("ledgerd: an editor is already registered; genesis bootstrap only applies to an empty registry")
	}

	kp, err := signer.GenerateKeyPair()
	if err != nil {
		log.Fatalf("ledgerd: generate keypair: %v", err)
	}

	editorID := uuid.New()
	st.keys.SetKey(editorID, kp.PrivateKey)
	res, err := st.ledger.RegisterEditor(ctx, editorID, ledgerservice.RegisterEditorCommand{
		Username:    *username,
		DisplayName: *displayName,
		Role:        "admin",
		PublicKey:   kp.PublicKeyBase64(),
	})
	if err != nil {
		log.Fatalf("ledgerd: register genesis editor: %v", err)
	}

	fmt.Printf("genesis editor registered: editor_id=%s event_id=%s sequence=%d\n", editorID, res.EventID, res.SequenceNumber)
	fmt.Printf("private_key (base64, store securely, shown once): %s\n", kp.PrivateKeyBase64())
	fmt.Printf("public_key (base64): %s\n", kp.PublicKeyBase64())
}

// runVerifyProof checks a single exported inclusion proof JSON file
// against its own claimed Merkle root, with no store or config access:
// an auditor holding only the proof and the batch root they already
// trust (from a published anchor) can run this offline.
func runVerifyProof(args []string) {
	fs := flag.NewFlagSet("verify-proof", flag.ExitOnError)
	proofPath := fs.String("proof", "", "path to an exported inclusion proof JSON file")
	fs.Parse(args)

	if *proofPath == "" {
		log.Fatal("ledgerd: -proof is required")
	}
	raw, err := os.ReadFile(*proofPath)
	if err != nil {
		log.Fatalf("ledgerd: read proof: %v", err)
	}

	var proof anchor.InclusionProofResult
	if err := json.Unmarshal(raw, &proof); err != nil {
		log.Fatalf("ledgerd: parse proof: %v", err)
	}

	ok, err := anchor.VerifyInclusionProof(&proof)
	if err != nil {
		log.Fatalf("ledgerd: verify proof: %v", err)
	}
	if !ok {
		fmt.Println("INVALID: proof does not recompute to its claimed root")
		os.Exit(1)
	}
	fmt.Println("VALID")
}
