// Package main provides a utility to seed development data: a CA
// hierarchy, OAuth clients, a user, and a client certificate.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/ca"
	"github.com/openclave/certidp/internal/domain"
	"github.com/openclave/certidp/internal/store/file"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "Data directory")
	p12Out := flag.String("p12-out", "test-user.p12", "Path to write the seeded user's PKCS#12 bundle")
	p12Password := flag.String("p12-password", "changeit1", "Password protecting the PKCS#12 bundle")
	flag.Parse()

	// Initialize store
	fileStore, err := file.NewStore(*dataDir)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer fileStore.Close()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auditor := audit.New(fileStore.Audit(), logger)

	// Initialize CA hierarchy
	caStore := ca.NewStore(fileStore.Authorities())
	root, intermediate, err := caStore.Initialize(ctx,
		ca.Subject{CommonName: "CertIDP Dev Root CA", Organization: "CertIDP Dev", Country: "US"},
		ca.Subject{CommonName: "CertIDP Dev Issuing CA", Organization: "CertIDP Dev", Country: "US"},
		20, 10,
	)
	if err != nil {
		fmt.Printf("CA may already be initialized: %v\n", err)
	} else {
		fmt.Printf("Created root CA: %s (serial %s)\n", root.SubjectDN, root.SerialNumber)
		fmt.Printf("Created intermediate CA: %s (serial %s)\n", intermediate.SubjectDN, intermediate.SerialNumber)
	}

	// Create confidential test client
	secret := "test-secret-test-secret"
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash client secret: %v", err)
	}
	client := &domain.Client{
		ID:           "test-client",
		SecretHash:   string(hash),
		Name:         "Test Application",
		RedirectURIs: []string{"http://localhost:3000/callback", "http://localhost:8081/callback"},
		Public:       false,
	}
	if err := fileStore.Clients().Create(ctx, client); err != nil {
		fmt.Printf("Client may already exist: %v\n", err)
	} else {
		fmt.Printf("Created client: %s (secret: %s)\n", client.ID, secret)
	}

	// Create public test client (PKCE required)
	publicClient := &domain.Client{
		ID:           "test-public-client",
		Name:         "Test Public Application",
		RedirectURIs: []string{"http://localhost:3000/callback", "http://localhost:8081/callback"},
		Public:       true,
	}
	if err := fileStore.Clients().Create(ctx, publicClient); err != nil {
		fmt.Printf("Public client may already exist: %v\n", err)
	} else {
		fmt.Printf("Created public client: %s\n", publicClient.ID)
	}

	// Create test user
	user := &domain.User{
		ID:          uuid.New().String(),
		Email:       "test@example.com",
		DisplayName: "Test User",
		Active:      true,
	}
	if err := fileStore.Users().Create(ctx, user); err != nil {
		fmt.Printf("User may already exist: %v\n", err)
	} else {
		fmt.Printf("Created user: %s (%s)\n", user.Email, user.ID)
	}

	// Issue a client certificate for the test user and write the bundle
	issuer := ca.NewIssuer(caStore, fileStore.Certificates(), fileStore.Revocations(), auditor, logger)
	result, err := issuer.Issue(ctx, ca.Identity{
		CommonName: user.DisplayName,
		Email:      user.Email,
		UserID:     user.ID,
	}, *p12Password, 1)
	if err != nil {
		fmt.Printf("Certificate issuance skipped: %v\n", err)
	} else {
		out := filepath.Clean(*p12Out)
		if err := os.WriteFile(out, result.PKCS12, 0o600); err != nil {
			log.Fatalf("Failed to write PKCS#12 bundle: %v", err)
		}
		fmt.Printf("Issued certificate serial %s, bundle written to %s (password: %s)\n",
			result.SerialNumber, out, *p12Password)
	}

	fmt.Println("\nSeed data created successfully!")
	fmt.Println("\nTest with:")
	fmt.Println("  1. Start server: go run ./cmd/certidp")
	fmt.Println("  2. Fetch a challenge: curl http://localhost:8080/challenge")
	fmt.Println("  3. Sign it with the key in the PKCS#12 bundle and POST to /auth/signature/verify")

	os.Exit(0)
}
