package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"library-service/library"
)

func main() {
	var (
		dbPath string
		fresh  bool
	)

	cmd := &cobra.Command{
		Use:   "import_books <catalog.json>",
		Short: "Seed the catalog from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fresh {
				// Clean up any existing database files
				fmt.Println("Cleaning up existing database files...")
				for _, file := range []string{dbPath, dbPath + "-shm", dbPath + "-wal"} {
					if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
						fmt.Printf("Warning: Could not remove %s: %v\n", file, err)
					}
				}
			}

			log := logrus.New()
			log.SetLevel(logrus.WarnLevel)
			manager, err := library.NewLibraryManager(
				library.DatabaseConfig{Driver: library.DriverSQLite, Path: dbPath},
				library.WithLogger(log),
			)
			if err != nil {
				return fmt.Errorf("creating database: %w", err)
			}
			defer manager.Close()

			f, err := os.Open(filepath.Clean(args[0]))
			if err != nil {
				return err
			}
			defer f.Close()

			fmt.Printf("Importing books from %s...\n", args[0])
			res, err := manager.ImportCatalog(cmd.Context(), f)
			if err != nil {
				return err
			}

			failed := make([]string, 0, len(res.Failed))
			for name := range res.Failed {
				failed = append(failed, name)
			}
			sort.Strings(failed)
			for _, name := range failed {
				fmt.Printf("ERROR - %s: %v\n", name, res.Failed[name])
			}

			fmt.Printf("\nImport complete!\n")
			fmt.Printf("Successfully imported: %d books\n", len(res.Imported))
			fmt.Printf("Errors: %d\n", len(res.Failed))

			if len(res.Imported) > 0 {
				fmt.Println("\nImported books:")
				fmt.Printf("%-36s %-50s %-30s\n", "ID", "Name", "Author")
				fmt.Println(strings.Repeat("-", 118))
				for _, book := range res.Imported {
					author := ""
					if book.Author != nil {
						author = book.Author.Name
					}
					fmt.Printf("%-36s %-50s %-30s\n", book.ID, truncateString(book.Name, 50), truncateString(author, 30))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db-path", "library.db", "sqlite database file")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "delete the existing database first")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
