package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hgeldenhuys/trak/internal/daemon"
)

func buildServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install, start, stop, or inspect trakd as a persistent OS service",
	}
	cmd.AddCommand(
		buildServiceInstallCmd(),
		buildServiceUninstallCmd(),
		buildServiceStartCmd(),
		buildServiceStopCmd(),
		buildServiceStatusCmd(),
		buildServiceAuditCmd(),
	)
	return cmd
}

func requireServiceManager() (daemon.ServiceManager, error) {
	mgr := daemon.GetServiceManager()
	if mgr == nil {
		return nil, fmt.Errorf("trakd: no service manager available for this platform")
	}
	return mgr, nil
}

func buildServiceInstallCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install trakd as a background service and start it",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := requireServiceManager()
			if err != nil {
				return err
			}
			if configPath == "" {
				configPath = defaultConfigPath()
			}
			exePath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("trakd: resolve executable path: %w", err)
			}
			cfg, err := loadConfigOrDefaults(configPath, false)
			if err != nil {
				return fmt.Errorf("trakd: %w", err)
			}

			result, err := mgr.Install(daemon.BuildInstallOptions(cfg, exePath, configPath))
			if err != nil {
				return fmt.Errorf("trakd: install %s service: %w", mgr.Label(), err)
			}
			fmt.Printf("trakd: installed %s service (%s)\n", mgr.Label(), result.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Stop and remove the trakd service",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := requireServiceManager()
			if err != nil {
				return err
			}
			if err := mgr.Uninstall(nil); err != nil {
				return fmt.Errorf("trakd: uninstall %s service: %w", mgr.Label(), err)
			}
			fmt.Printf("trakd: uninstalled %s service\n", mgr.Label())
			return nil
		},
	}
}

func buildServiceStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the installed trakd service",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := requireServiceManager()
			if err != nil {
				return err
			}
			if err := mgr.Restart(nil); err != nil {
				return fmt.Errorf("trakd: start %s service: %w", mgr.Label(), err)
			}
			fmt.Printf("trakd: started %s service\n", mgr.Label())
			return nil
		},
	}
}

func buildServiceStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the trakd service without uninstalling it",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := requireServiceManager()
			if err != nil {
				return err
			}
			if err := mgr.Stop(nil); err != nil {
				return fmt.Errorf("trakd: stop %s service: %w", mgr.Label(), err)
			}
			fmt.Printf("trakd: stopped %s service\n", mgr.Label())
			return nil
		},
	}
}

func buildServiceAuditCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the installed service's command line and data paths for common misconfiguration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = defaultConfigPath()
			}
			exePath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("trakd: resolve executable path: %w", err)
			}
			cfg, err := loadConfigOrDefaults(configPath, false)
			if err != nil {
				return fmt.Errorf("trakd: %w", err)
			}

			var sourcePath string
			if mgr, mgrErr := requireServiceManager(); mgrErr == nil {
				sourcePath = mgr.ServicePath(nil)
			}

			audit, err := daemon.AuditServiceConfig(daemon.AuditParams{
				Platform: runtime.GOOS,
				Command: &daemon.ServiceCommand{
					ProgramArguments: []string{exePath, "serve", "--config", configPath},
					SourcePath:       sourcePath,
				},
				ConfigPath: configPath,
				DataDir:    cfg.Store.DataDir,
			})
			if err != nil {
				return fmt.Errorf("trakd: audit service config: %w", err)
			}

			if audit.OK {
				fmt.Println("trakd: service configuration looks good")
				return nil
			}
			for _, issue := range audit.Issues {
				fmt.Printf("[%s] %s: %s\n", issue.Level, issue.Message, issue.Detail)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the installed service's runtime status",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := requireServiceManager()
			if err != nil {
				return err
			}
			installed, err := mgr.IsInstalled(nil)
			if err != nil {
				return fmt.Errorf("trakd: check %s install: %w", mgr.Label(), err)
			}
			if !installed {
				fmt.Printf("%s: not installed\n", mgr.Label())
				return nil
			}

			rt, err := mgr.Runtime(nil)
			if err != nil {
				return fmt.Errorf("trakd: read %s runtime: %w", mgr.Label(), err)
			}
			fmt.Printf("%s: %s", mgr.Label(), rt.Status)
			if rt.PID > 0 {
				fmt.Printf(" (pid=%d)", rt.PID)
			}
			fmt.Println()
			if rt.Detail != "" {
				fmt.Println(rt.Detail)
			}
			return nil
		},
	}
}
