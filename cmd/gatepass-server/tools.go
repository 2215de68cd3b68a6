package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/signing"
	"github.com/BrandonDHaskell/gatepass/server/internal/grpcapi"
)

// ── token ────────────────────────────────────────────────────────────────────

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token signed with GATEPASS_JWT_SECRET",
	Long: `Issue a bearer token for an admin, user or gate identity.

Example:
  gatepass-server token --role admin --subject ops@example.com`,
	RunE: runToken,
}

var (
	tokenRole    string
	tokenSubject string
)

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleAdmin), "token role (admin, user or gate)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "user ID, tablet ID or admin name")
}

func runToken(cmd *cobra.Command, args []string) error {
	role := auth.Role(tokenRole)
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", tokenRole)
	}
	if tokenSubject == "" {
		return fmt.Errorf("--subject is required")
	}

	tok, err := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL).Issue(tokenSubject, role)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

// ── keygen ───────────────────────────────────────────────────────────────────

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an age identity for the private key store",
	Long: `Generate an X25519 age identity. Set GATEPASS_KEYSTORE_IDENTITY to the
secret key and keep it out of version control.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, recipient, err := signing.GenerateIdentity()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "# public key: %s\n", recipient)
		_, _ = fmt.Fprintln(out, identity)
		return nil
	},
}

// ── scan ─────────────────────────────────────────────────────────────────────

var scanCmd = &cobra.Command{
	Use:   "scan <qr-payload>",
	Short: "Submit a QR payload to a gate scan service over gRPC",
	Long: `Submit a QR payload as a gate tablet would and print the decision.

Example:
  gatepass-server scan --addr localhost:9090 --token "$GATE_TOKEN" '{"p":"PASS...","t":"...","s":"..."}'`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var (
	scanAddr    string
	scanToken   string
	scanTimeout time.Duration
)

func init() {
	scanCmd.Flags().StringVar(&scanAddr, "addr", "localhost:9090", "gRPC address of the gate scan service")
	scanCmd.Flags().StringVar(&scanToken, "token", "", "gate bearer token")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 5*time.Second, "request timeout")
	_ = scanCmd.MarkFlagRequired("token")
}

func runScan(cmd *cobra.Command, args []string) error {
	conn, err := grpc.NewClient(scanAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", scanAddr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+scanToken)

	resp, err := grpcapi.NewGateScanClient(conn).Scan(ctx, args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
