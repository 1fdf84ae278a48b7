package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teranos/offramp/credentials"
)

// CredentialsCmd stores encrypted tenant directory credentials
var CredentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Store encrypted tenant directory credentials",
}

var (
	credTenant   string
	credAppID    string
	credSecret   string
	credLifetime time.Duration
)

var credentialsPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Store an encrypted credential on a new admin session",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, cfg, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		keys, err := credentials.NewEnclaveKeyProviderHex(cfg.Vault.Key)
		if err != nil {
			return fmt.Errorf("vault key: %w", err)
		}

		secretEnc, err := credentials.Encrypt(keys, credSecret)
		if err != nil {
			return err
		}

		session := &credentials.Session{
			ID:              "SES_" + uuid.NewString(),
			TenantID:        credTenant,
			AppID:           credAppID,
			ClientSecretEnc: secretEnc,
			ExpiresAt:       time.Now().UTC().Add(credLifetime),
		}

		if err := credentials.NewSessionStore(conn).CreateSession(session); err != nil {
			return err
		}

		fmt.Printf("Stored credential on session %s (expires %s)\n",
			session.ID, session.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	credentialsPutCmd.Flags().StringVar(&credTenant, "tenant", "", "Tenant id (required)")
	credentialsPutCmd.Flags().StringVar(&credAppID, "app-id", "", "Application (client) id (required)")
	credentialsPutCmd.Flags().StringVar(&credSecret, "secret", "", "Client secret (required)")
	credentialsPutCmd.Flags().DurationVar(&credLifetime, "lifetime", 24*time.Hour, "Session lifetime")
	credentialsPutCmd.MarkFlagRequired("tenant")
	credentialsPutCmd.MarkFlagRequired("app-id")
	credentialsPutCmd.MarkFlagRequired("secret")

	CredentialsCmd.AddCommand(credentialsPutCmd)
}
