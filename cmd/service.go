package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

const (
	serviceName        = "stationd"
	serviceDisplayName = "Weather Station Collector"
	serviceDescription = "Collects weather station readings into PostgreSQL with a local fallback queue."
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage stationd as an OS service (systemd, launchd, Windows SCM)",
}

func init() {
	for _, action := range service.ControlAction {
		serviceCmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the %s service", action, serviceName),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return controlService(action)
			},
		})
	}
	serviceCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the service is installed and running",
		Args:  cobra.NoArgs,
		RunE:  runServiceStatus,
	})
	serviceCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run under the service manager (used by the installed service)",
		Args:  cobra.NoArgs,
		RunE:  runService,
	})
	rootCmd.AddCommand(serviceCmd)
}

// program adapts the collection loop to the service manager's start/stop
// callbacks.
type program struct {
	app    *app
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.app, p.cancel, p.done = a, cancel, make(chan error, 1)

	go func() {
		// The service manager turns SIGINT and SIGTERM into Stop.
		p.done <- a.run(ctx, false)
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.app.logger.Info("service stop requested")
	p.cancel()
	err := <-p.done
	p.app.close()
	return err
}

func serviceConfig() (*service.Config, error) {
	args := []string{"service", "run"}
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	if logFormat != "" {
		args = append(args, "--log-format", logFormat)
	}
	return &service.Config{
		Name:        serviceName,
		DisplayName: serviceDisplayName,
		Description: serviceDescription,
		Arguments:   args,
		Option: service.KeyValue{
			"Restart": "on-failure",
		},
	}, nil
}

func newService(p *program) (service.Service, error) {
	cfg, err := serviceConfig()
	if err != nil {
		return nil, err
	}
	s, err := service.New(p, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating service: %w", err)
	}
	return s, nil
}

func controlService(action string) error {
	s, err := newService(&program{})
	if err != nil {
		return err
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("service %s: %w", action, err)
	}
	slog.Info("service action complete", "service", serviceName, "action", action)
	return nil
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	s, err := newService(&program{})
	if err != nil {
		return err
	}
	st, err := s.Status()
	if err != nil {
		return fmt.Errorf("querying service status: %w", err)
	}

	state := "unknown"
	switch st {
	case service.StatusRunning:
		state = "running"
	case service.StatusStopped:
		state = "stopped"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", serviceName, state)
	return nil
}

func runService(cmd *cobra.Command, args []string) error {
	s, err := newService(&program{})
	if err != nil {
		return err
	}
	return s.Run()
}
