package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"mediagen/internal/providers"
	"mediagen/internal/providers/genai"
	"mediagen/internal/storage"
)

// credcheck validates the deployment's credentials without starting the
// service: provider key and model routes, plus the storage credential
// strategy. It does not open the database.
func main() {
	var keyFlag string
	flag.StringVar(&keyFlag, "key", "", "provider API key (falls back to PROVIDER_API_KEY)")
	flag.Parse()

	_ = godotenv.Load()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("PROVIDER_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "provider API key is required via -key or PROVIDER_API_KEY")
		os.Exit(1)
	}

	failed := false

	routes := providers.DefaultRoutes("")
	if path := os.Getenv("PROVIDER_ROUTES_FILE"); path != "" {
		loaded, err := providers.LoadRoutes(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "route table: %v\n", err)
			failed = true
		} else {
			routes = loaded
			fmt.Printf("route table: ok (%s)\n", path)
		}
	}
	for _, name := range []string{"image", "video"} {
		route, _ := routes.Resolve(name)
		if _, err := genai.NewClient(genai.Options{APIKey: key, BaseURL: route.BaseURL, Model: route.Model}); err != nil {
			fmt.Fprintf(os.Stderr, "provider %s: %v\n", name, err)
			failed = true
		} else {
			fmt.Printf("provider %s: ok (model %s)\n", name, route.Model)
		}
	}

	switch {
	case os.Getenv("STORAGE_CONN_SECRET") != "":
		if _, err := storage.ParseConnectionSecret(os.Getenv("STORAGE_CONN_SECRET")); err != nil {
			fmt.Fprintf(os.Stderr, "storage connection secret: %v\n", err)
			failed = true
		} else {
			fmt.Println("storage connection secret: ok")
		}
	case os.Getenv("STORAGE_ACCOUNT") != "" || os.Getenv("STORAGE_ACCESS_KEY") != "" || os.Getenv("STORAGE_ENDPOINT") != "":
		if _, err := storage.NewBlobCredentials(os.Getenv("STORAGE_ACCOUNT"), os.Getenv("STORAGE_ACCESS_KEY"), os.Getenv("STORAGE_ENDPOINT")); err != nil {
			fmt.Fprintf(os.Stderr, "storage account credentials: %v\n", err)
			failed = true
		} else {
			fmt.Println("storage account credentials: ok")
		}
	default:
		fmt.Println("storage: filesystem mode")
	}

	if failed {
		os.Exit(1)
	}
}
