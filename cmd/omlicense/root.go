package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"odoomaster/internal/config"
	"odoomaster/internal/infrastructure"
	"odoomaster/internal/license"
	"odoomaster/internal/revocation"
	"odoomaster/internal/security"
	"odoomaster/internal/services"
)

// errLicenseInvalid makes the process exit 1 after the verdict was printed
var errLicenseInvalid = errors.New("license invalid")

type rootOptions struct {
	verbose bool
	lang    string
	baseDir string

	out    io.Writer
	errOut io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:           "omlicense",
		Short:         "Issue, verify and manage OdooMaster licenses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")
	flags.StringVar(&opts.lang, "lang", "", "Message language (en, fa)")
	flags.StringVar(&opts.baseDir, "base-dir", "", "Directory holding keys, caches and the revocation registry (default: executable directory)")

	cmd.AddCommand(
		newKeygenCommand(opts),
		newIssueCommand(opts),
		newVerifyCommand(opts),
		newRevokeCommand(opts),
		newActivateCommand(opts),
		newStatusCommand(opts),
		newDeactivateCommand(opts),
		newHardwareIDCommand(opts),
		newLegacyKeyCommand(opts),
		newVersionCommand(opts),
	)
	return cmd
}

func (o *rootOptions) load() error {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	o.logger = infrastructure.NewStreamLogger(o.errOut, level)

	cfg, err := config.LoadWithBaseDir(o.baseDir)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger.Debug("configuration loaded",
		slog.String("base_dir", cfg.License.BaseDir),
		slog.String("public_key_file", cfg.License.PublicKeyFile))
	return nil
}

func (o *rootOptions) language() language.Tag {
	return license.MatchLanguage(o.lang)
}

// verifyCore is what every verifying command needs
type verifyCore struct {
	hardware *security.FingerprintProvider
	registry *revocation.Registry
	verifier *license.Verifier
	store    *license.Store
}

// core builds the verification side from the configuration. publicKeyFile
// overrides the configured key file when set.
func (o *rootOptions) core(publicKeyFile string) (*verifyCore, error) {
	lc := o.cfg.License
	pemText := lc.PublicKeyPEM
	if publicKeyFile != "" {
		pemText, lc.PublicKeyFile = "", publicKeyFile
	}

	publicKey, err := license.LoadPublicKey(pemText, lc.PublicKeyFile)
	if err != nil {
		return nil, err
	}
	if publicKey == nil {
		o.logger.Warn("no public key configured", slog.String("public_key_file", lc.PublicKeyFile))
	}

	hardware := security.NewFingerprintProvider(o.logger)
	registry := revocation.NewRegistry(lc.RevocationFile, revocation.WithLogger(o.logger))
	verifier := license.NewVerifier(publicKey, registry,
		license.WithAllowLegacy(lc.AllowLegacy),
		license.WithLegacySecret(lc.LegacySecret),
		license.WithVerifierLogger(o.logger))
	store := license.NewStore(verifier, hardware, license.PathsFromConfig(lc), license.WithStoreLogger(o.logger))

	return &verifyCore{hardware: hardware, registry: registry, verifier: verifier, store: store}, nil
}

// service wraps c in a LicenseService; authority and ledger may be nil
func (o *rootOptions) service(c *verifyCore, authority *license.Authority, ledger services.Ledger) services.LicenseService {
	return services.NewLicenseService(services.LicenseDeps{
		Authority: authority,
		Verifier:  c.verifier,
		Registry:  c.registry,
		Store:     c.store,
		Ledger:    ledger,
		Hardware:  c.hardware,
	}, o.logger)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (o *rootOptions) printf(format string, args ...interface{}) {
	fmt.Fprintf(o.out, format, args...)
}

func (o *rootOptions) warnf(format string, args ...interface{}) {
	fmt.Fprintf(o.errOut, "WARNING: "+format, args...)
}
