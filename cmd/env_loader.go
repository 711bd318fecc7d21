package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order; later files override earlier ones. An
// explicit STAGEHAND_ENV_FILE is loaded last so operators can point a
// deployment at a specific file.
func envFiles() []string {
	files := []string{
		".env",
		".env.local",
	}
	if extra := os.Getenv("STAGEHAND_ENV_FILE"); extra != "" {
		files = append(files, extra)
	}
	return files
}

func loadEnvFiles() {
	for _, filename := range envFiles() {
		if _, err := os.Stat(filename); err != nil {
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "warning: unable to read %s: %v\n", filename, err)
			}
			continue
		}

		if err := godotenv.Overload(filename); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", filename, err)
		}
	}
}
