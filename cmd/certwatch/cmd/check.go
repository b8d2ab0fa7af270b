package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/certwatch/certwatch/internal/bundle"
	"github.com/certwatch/certwatch/internal/config"
	certerrors "github.com/certwatch/certwatch/internal/errors"
	"github.com/certwatch/certwatch/internal/pemfile"
)

// expiryWarning is how close to NotAfter a certificate gets flagged.
const expiryWarning = 30 * 24 * time.Hour

// newCheckCmd creates the check command.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configured bundles without serving",
		Long: `Check loads every configured bundle, verifies that the private key
pairs with a certificate in its file, and reports expiry. Exits
non-zero when any bundle fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return certerrors.Wrap(certerrors.ErrCodeConfigInvalid, err)
			}
			return runCheck(cmd, cfg)
		},
	}
}

func runCheck(cmd *cobra.Command, cfg config.Config) error {
	out := cmd.OutOrStdout()
	loader := pemfile.NewLoader()

	failed := 0
	for _, name := range cfg.BundleNames() {
		bc := cfg.Bundles[name]
		if err := checkBundle(loader, name, bc); err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "OK    %s\n", name)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d bundles failed validation", failed, len(cfg.Bundles))
	}
	if len(cfg.Bundles) == 0 {
		fmt.Fprintln(out, "no bundles configured")
	}
	return nil
}

func checkBundle(loader *pemfile.Loader, name string, bc config.BundleConfig) error {
	key, err := loader.PrivateKey(bc.PrivateKey)
	if err != nil {
		return err
	}
	certs, err := loader.Certificates(bc.Certificate)
	if err != nil {
		return err
	}

	matcher := bundle.NewCertificateMatcher(key)
	if !matcher.MatchesAny(certs) {
		return certerrors.New(certerrors.ErrCodeKeyMismatch,
			fmt.Sprintf("private key %s does not match any certificate in %s",
				bc.PrivateKey, bc.Certificate), nil)
	}

	if bc.TrustAnchors != "" {
		if _, err := loader.Certificates(bc.TrustAnchors); err != nil {
			return err
		}
	}

	for _, cert := range certs {
		if matcher.Matches(cert) {
			if until := time.Until(cert.NotAfter); until < expiryWarning {
				return fmt.Errorf("certificate for %q expires %s", name,
					cert.NotAfter.Format(time.RFC3339))
			}
		}
	}
	return nil
}
