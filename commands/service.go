package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "paprika"

// program adapts runServe to the service manager's Start/Stop lifecycle.
type program struct {
	app     *app
	cancel  context.CancelFunc
	exit    chan struct{}
	err     error
	timeout time.Duration
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.exit = make(chan struct{})
	go func() {
		defer close(p.exit)
		p.err = runServe(ctx, p.app, false)
		if p.err != nil {
			p.app.logger.Error("Service stopped with error", zap.Error(p.err))
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel()
	select {
	case <-p.exit:
		return p.err
	case <-time.After(p.timeout):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

// serviceConfig describes the installed service. The service re-runs this
// binary as `paprika service run` with the same env file.
func serviceConfig(envFile string) (*service.Config, error) {
	args := []string{"service", "run"}
	if envFile != "" {
		abs, err := filepath.Abs(envFile)
		if err != nil {
			return nil, err
		}
		args = append(args, "--env-file", abs)
	}
	return &service.Config{
		Name:        serviceName,
		DisplayName: "Paprika Stylizer",
		Description: "Serves the Paprika anime style-transfer prediction API",
		Arguments:   args,
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}, nil
}

func newService(a *app) (service.Service, error) {
	cfg, err := serviceConfig(a.envFile)
	if err != nil {
		return nil, err
	}
	timeout := 30 * time.Second
	if a.cfg != nil {
		timeout = a.cfg.ShutdownTimeout + 5*time.Second
	}
	s, err := service.New(&program{app: a, timeout: timeout}, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

func serviceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control paprika as a system service",
	}

	control := func(action, done string) *cobra.Command {
		return &cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := newService(a)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("failed to %s service: %w", action, err)
				}
				okColor.Fprintf(a.out, "✓ service %s\n", done)
				return nil
			},
		}
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the system service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(a)
			if err != nil {
				return err
			}
			st, err := s.Status()
			if err != nil && st != service.StatusUnknown {
				return fmt.Errorf("failed to query service: %w", err)
			}
			fmt.Fprintf(a.out, "%s %s\n", serviceName, statusLabel(st))
			return nil
		},
	}

	run := &cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if service.Interactive() {
				return runServe(cmd.Context(), a, true)
			}
			s, err := newService(a)
			if err != nil {
				return err
			}
			return s.Run()
		},
	}

	cmd.AddCommand(
		control("install", "installed"),
		control("uninstall", "uninstalled"),
		control("start", "started"),
		control("stop", "stopped"),
		control("restart", "restarted"),
		status,
		run,
	)
	return cmd
}

func statusLabel(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return okColor.Sprint("running")
	case service.StatusStopped:
		return warnColor.Sprint("stopped")
	default:
		return dimColor.Sprint("not installed")
	}
}
