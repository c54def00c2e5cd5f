package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/roomrelay/internal/config"
	"github.com/BioHazard786/roomrelay/internal/ui"
	"github.com/BioHazard786/roomrelay/internal/version"
)

var flagVersionRemote bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		fmt.Printf("roomrelay %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildTime)

		if !flagVersionRemote {
			return nil
		}
		cfg, err := config.LoadClient(config.ClientOptions{ConfigPath: flagConfigPath})
		if err != nil {
			return NewError("load config", err)
		}
		remote, err := fetchVersion(cmd.Context(), http.DefaultClient, cfg.HTTPURL("/version"))
		if err != nil {
			return NewError("query relay version", err)
		}
		ui.PrintInfof("relay %s runs %s (commit %s)", cfg.ServerURL, remote.Version, remote.Commit)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&flagVersionRemote, "remote", false, "Also query the configured relay (env: RELAY_URL)")
}

func fetchVersion(ctx context.Context, client *http.Client, url string) (*version.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, resp.Status)
	}
	var info version.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return &info, nil
}
