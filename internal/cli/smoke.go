package cli

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/localstack-control-plane/internal/smoke"
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Check that a running backend serves S3",
	Long: `Create a bucket, write an object, read it back and compare, using the AWS SDK
against --endpoint. The bucket is removed afterwards unless --keep is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, _ := cmd.Flags().GetString("bucket")
		keep, _ := cmd.Flags().GetBool("keep")
		region, _ := cmd.Flags().GetString("region")

		color.Cyan("→ S3 round-trip against %s", cfg.Endpoint)
		res, err := smoke.Run(cmd.Context(), cfg.Endpoint, smoke.Options{
			Region: region,
			Bucket: bucket,
			Keep:   keep,
			Logger: logger,
		})
		if err != nil {
			color.Red("✗ Smoke test failed")
			return err
		}

		color.Green("✓ S3 bucket %s created", res.Bucket)
		color.Green("✓ S3 object %s written and read back: %q", res.Key, res.Content)
		color.Cyan("  took %s", res.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	f := smokeCmd.Flags()
	f.String("endpoint", "", "backend endpoint (default http://localhost:4566)")
	f.String("bucket", "", "bucket name (default random)")
	f.String("region", smoke.DefaultRegion, "AWS region")
	f.Bool("keep", false, "keep the bucket and object")
}
