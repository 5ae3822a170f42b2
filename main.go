package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-service/api"
	"library-service/library"
)

// readPassword securely reads a password with masking. Piped input is read
// as a single line.
func readPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

func newRootCmd(cfg *config) *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Library management REST service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfg.registerFlags(root.PersistentFlags())

	root.AddCommand(newServeCmd(cfg), newMigrateCmd(cfg), newCreateAdminCmd(cfg))
	return root
}

func newServeCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := cfg.logger()
			if err != nil {
				return err
			}
			mgr, err := cfg.manager(log)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer mgr.Close()

			files, err := library.NewDiskStore(cfg.UploadDir, api.UploadsPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.NewServer(mgr, files, cfg.UploadDir, log).ListenAndServe(ctx, cfg.Addr)
		},
	}
}

func newMigrateCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := cfg.logger()
			if err != nil {
				return err
			}
			mgr, err := cfg.manager(log)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer mgr.Close()
			log.WithField("driver", cfg.DBDriver).Info("schema up to date")
			return nil
		},
	}
}

func newCreateAdminCmd(cfg *config) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a librarian account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := cfg.logger()
			if err != nil {
				return err
			}
			mgr, err := cfg.manager(log)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer mgr.Close()

			password, err := readPassword(fmt.Sprintf("Enter password for %s: ", email))
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if password == "" {
				return fmt.Errorf("password cannot be empty")
			}

			isAdmin := true
			u, err := mgr.AddUser(cmd.Context(), library.UserInput{
				Name:     &name,
				Email:    &email,
				Password: &password,
				IsAdmin:  &isAdmin,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added librarian '%s' with ID %s\n", u.Name, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd(cfg).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
