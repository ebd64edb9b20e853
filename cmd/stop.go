package cmd

import (
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentworker/internal/daemonconfig"
	"github.com/nextlevelbuilder/agentworker/internal/registry"
)

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Send a graceful shutdown request to the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop()
		},
	}
}

func runStop() error {
	cfg, err := daemonconfig.Resolve(flagHost, flagPort, flagHome)
	if err != nil {
		return fmt.Errorf("resolve config: %w", err)
	}

	reg, err := registry.New(cfg.Home)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	rec, err := reg.ReadDaemonRecord()
	if err != nil {
		return fmt.Errorf("read daemon record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no daemon is running under %s", cfg.Home)
	}
	if syscall.Kill(rec.PID, 0) != nil {
		reg.RemoveDaemonRecord()
		return fmt.Errorf("daemon record is stale (pid %d is not running); removed", rec.PID)
	}

	url := fmt.Sprintf("http://%s:%d/shutdown", rec.Host, rec.Port)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if rec.Token != "" {
		req.Header.Set("Authorization", "Bearer "+rec.Token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("shutdown request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("shutdown request returned status %d", resp.StatusCode)
	}
	fmt.Printf("shutdown requested for pid %d\n", rec.PID)
	return nil
}
