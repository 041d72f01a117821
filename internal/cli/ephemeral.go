package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/localstack-control-plane/internal/ephemeral"
	"github.com/blackwell-systems/localstack-control-plane/internal/localstack"
	"github.com/blackwell-systems/localstack-control-plane/internal/manifest"
)

var ephemeralCmd = &cobra.Command{
	Use:     "ephemeral",
	Aliases: []string{"eph"},
	Short:   "Manage remotely hosted ephemeral instances",
	Long: `Create, list, inspect and delete LocalStack instances hosted by the LocalStack
platform. Every operation needs a credential (--auth-token).`,
}

var ephemeralCreateCmd = &cobra.Command{
	Use:   "create [NAME]",
	Short: "Create an instance and wait until it is ready",
	Long: `Create one instance by name, or every instance listed in a manifest (-f).

Create waits until the instance reports ready, up to --max-wait. On timeout the
instance is left in place; check it with 'list' or remove it with 'delete'.`,
	Example: `  localstack-ci ephemeral create pr-42 --lifetime 30 --auto-load-pod ci-baseline
  localstack-ci ephemeral create -f previews.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if (file == "") == (len(args) == 0) {
			return fmt.Errorf("give exactly one of NAME or --file")
		}

		reqs, err := createRequests(cmd, args, file)
		if err != nil {
			return err
		}

		cred, err := credentialFromConfig()
		if err != nil {
			return err
		}
		client := newClient()

		for _, r := range reqs {
			color.Cyan("→ Creating %s (lifetime %d min)...", r.Name, r.Lifetime)
			res, err := client.Ephemeral(cmd.Context(), localstack.EphemeralRequest{
				Operation:   localstack.OpCreate,
				Credential:  cred,
				Name:        r.Name,
				Lifetime:    r.Lifetime,
				AutoLoadPod: r.AutoLoadPod,
				Extension:   r.Extension,
				Replace:     r.Replace,
			})
			if err != nil {
				color.Red("✗ Failed to create %s", r.Name)
				return err
			}
			color.Green("✓ %s", res.Message)
		}
		return nil
	},
}

func createRequests(cmd *cobra.Command, args []string, file string) ([]ephemeral.CreateRequest, error) {
	if file != "" {
		m, err := manifest.Load(file)
		if err != nil {
			return nil, err
		}
		return m.Requests(cfg.Ephemeral.Lifetime)
	}

	autoLoad, _ := cmd.Flags().GetString("auto-load-pod")
	extension, _ := cmd.Flags().GetString("extension")
	replace, _ := cmd.Flags().GetBool("replace")
	return []ephemeral.CreateRequest{{
		Name:        args[0],
		Lifetime:    cfg.Ephemeral.Lifetime,
		AutoLoadPod: autoLoad,
		Extension:   extension,
		Replace:     replace,
	}}, nil
}

var ephemeralListCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances of the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		format, err := manifest.ParseFormat(output)
		if err != nil {
			return err
		}

		cred, err := credentialFromConfig()
		if err != nil {
			return err
		}

		res, err := newClient().Ephemeral(cmd.Context(), localstack.EphemeralRequest{
			Operation:  localstack.OpList,
			Credential: cred,
		})
		if err != nil {
			return err
		}

		if path, _ := cmd.Flags().GetString("save-manifest"); path != "" {
			if err := manifest.Save(manifest.FromInstances(res.Instances), path); err != nil {
				return err
			}
			color.Green("✓ Manifest written to %s", path)
		}

		if format != manifest.FormatTable {
			return manifest.Encode(os.Stdout, format, res.Instances)
		}
		printInstances(os.Stdout, res.Instances)
		return nil
	},
}

func printInstances(w io.Writer, list []ephemeral.Instance) {
	if len(list) == 0 {
		color.Yellow("No instances")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tLIFETIME\tENDPOINT")
	for _, inst := range list {
		fmt.Fprintf(tw, "%s\t%s\t%dm\t%s\n", inst.Name, statusText(inst.Status()), inst.Lifetime, inst.EndpointURL)
	}
	tw.Flush()
}

func statusText(s ephemeral.Status) string {
	switch s {
	case ephemeral.StatusReady:
		return color.GreenString("✓ %s", s)
	case ephemeral.StatusError:
		return color.RedString("✗ %s", s)
	default:
		return color.YellowString("⚠ %s", s)
	}
}

var ephemeralLogsCmd = &cobra.Command{
	Use:   "logs NAME",
	Short: "Print the log of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := credentialFromConfig()
		if err != nil {
			return err
		}

		res, err := newClient().Ephemeral(cmd.Context(), localstack.EphemeralRequest{
			Operation:  localstack.OpLogs,
			Credential: cred,
			Name:       args[0],
		})
		if err != nil {
			return err
		}

		if res.Logs == "" {
			color.Yellow("%s", res.Message)
			return nil
		}
		fmt.Fprintln(os.Stdout, res.Logs)
		return nil
	},
}

var ephemeralDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := credentialFromConfig()
		if err != nil {
			return err
		}

		res, err := newClient().Ephemeral(cmd.Context(), localstack.EphemeralRequest{
			Operation:  localstack.OpDelete,
			Credential: cred,
			Name:       args[0],
		})
		if err != nil {
			color.Red("✗ Failed to delete %s", args[0])
			return err
		}

		color.Green("✓ %s", res.Message)
		return nil
	},
}

func init() {
	cf := ephemeralCreateCmd.Flags()
	cf.StringP("file", "f", "", "create every instance listed in this manifest (.yaml, .yml, .json)")
	cf.Int("lifetime", ephemeral.DefaultLifetime, "lifetime in minutes")
	cf.String("auto-load-pod", "", "Cloud Pod to load on startup")
	cf.String("extension", "", "extension to install on startup")
	cf.Bool("replace", false, "delete a same-named instance first")
	cf.Duration("poll-interval", ephemeral.DefaultPollInterval, "how often to check readiness")
	cf.Duration("max-wait", ephemeral.DefaultMaxWait, "how long to wait for readiness")

	lf := ephemeralListCmd.Flags()
	lf.StringP("output", "o", string(manifest.FormatTable), "output format (table|yaml|json)")
	lf.String("save-manifest", "", "also write the instances as a manifest to this file")

	for _, c := range []*cobra.Command{ephemeralCreateCmd, ephemeralListCmd, ephemeralLogsCmd, ephemeralDeleteCmd} {
		c.Flags().String("api-url", "", "management API base URL")
		ephemeralCmd.AddCommand(c)
	}
}
