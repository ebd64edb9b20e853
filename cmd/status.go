package cmd

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentworker/internal/daemonconfig"
	"github.com/nextlevelbuilder/agentworker/internal/registry"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the daemon record and its session catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
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
		fmt.Println("daemon: not running")
		return nil
	}

	alive := syscall.Kill(rec.PID, 0) == nil
	fmt.Printf("daemon: pid=%d host=%s port=%d started=%s alive=%v\n",
		rec.PID, rec.Host, rec.Port, rec.StartedAt.Format("2006-01-02T15:04:05Z07:00"), alive)

	sessions, err := reg.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("sessions: none")
		return nil
	}
	fmt.Printf("sessions (%d):\n", len(sessions))
	for _, s := range sessions {
		running := reg.IsRunning(s)
		fmt.Printf("  %-20s model=%-20s workflow=%-12s tag=%-8s running=%v\n",
			s.Name, s.Model, s.Workflow, s.Tag, running)
	}
	return nil
}
