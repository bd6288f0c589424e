package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrad567/gatekeeper-core/internal/apiclient"
)

// Settings keys, also readable from GATECTL_* environment variables and
// the config file. The server URL is also taken from GATEKEEPER_API_URL.
const (
	keyServer   = "server"
	keyToken    = "token"
	keyOperator = "operator"
	keyTimeout  = "timeout"

	defaultServer = "http://localhost:8080"
)

// app carries state shared by every command.
type app struct {
	out        io.Writer
	v          *viper.Viper
	cfgFile    string
	jsonOutput bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, v: viper.New()}

	root := &cobra.Command{
		Use:   "gatectl",
		Short: "Operate a gatekeeper ANPR gate server",
		Long: `gatectl manages the cameras and vehicle gates registered with a
gatekeeper server and sends open/close commands to the barriers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.gatectl.yaml)")
	flags.String(keyServer, defaultServer, "gatekeeper server URL")
	flags.String(keyToken, "", "bearer token (see 'gatectl login')")
	flags.String(keyOperator, "", "operator name recorded on gate commands")
	flags.Duration(keyTimeout, apiclient.DefaultTimeout, "request timeout")
	flags.BoolVar(&a.jsonOutput, "json", false, "output results as JSON")

	root.AddCommand(
		a.newCamerasCmd(),
		a.newGatesCmd(),
		a.newOpenCmd(),
		a.newCloseCmd(),
		a.newDashboardCmd(),
		a.newAuditCmd(),
		a.newLoginCmd(),
		a.newHealthCmd(),
		newHashPasswordCmd(out),
	)
	return root
}

// loadConfig layers flags over GATECTL_* env vars over the config file.
func (a *app) loadConfig(cmd *cobra.Command) error {
	for _, key := range []string{keyServer, keyToken, keyOperator, keyTimeout} {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return err
		}
	}
	a.v.SetEnvPrefix("gatectl")
	a.v.AutomaticEnv()
	if err := a.v.BindEnv(keyServer, "GATECTL_SERVER", "GATEKEEPER_API_URL"); err != nil {
		return err
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".gatectl")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (a.cfgFile != "" && errors.Is(err, fs.ErrNotExist)) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// saveToken persists a token to the config file.
func (a *app) saveToken(token string) (string, error) {
	a.v.Set(keyToken, token)

	path := a.v.ConfigFileUsed()
	if path == "" {
		path = a.cfgFile
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, ".gatectl.yaml")
	}
	if err := a.v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func (a *app) client() (*apiclient.Client, error) {
	return apiclient.New(apiclient.Config{
		BaseURL: a.v.GetString(keyServer),
		Token:   a.v.GetString(keyToken),
		Timeout: a.v.GetDuration(keyTimeout),
	})
}

// operator returns the name to record on gate commands.
func (a *app) operator() string {
	if op := strings.TrimSpace(a.v.GetString(keyOperator)); op != "" {
		return op
	}
	return os.Getenv("USER")
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) table(header ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	return w
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (a *app) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(h)
			}
			fmt.Fprintf(a.out, "%s (version %s, up %ds): %d cameras, %d gates\n",
				h.Status, h.Version, h.UptimeSeconds, h.Cameras, h.Gates)
			return nil
		},
	}
}
