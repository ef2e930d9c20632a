package main

import (
	"fmt"

	"streamgate/internal/storage"
)

// ensureBootstrapKey generates the first client API key when the key table
// is empty and prints it to the console. The secret is only shown once;
// after that the database holds just the argon2id hash.
func ensureBootstrapKey(store storage.Storage) error {
	hasKeys, err := store.HasAPIKeys()
	if err != nil {
		return fmt.Errorf("failed to check api keys: %w", err)
	}
	if hasKeys {
		return nil
	}

	key, err := storage.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("failed to generate api key: %w", err)
	}

	hash, err := storage.HashKey(key, storage.DefaultArgon2Params())
	if err != nil {
		return fmt.Errorf("failed to hash api key: %w", err)
	}

	record := &storage.ClientAPIKey{
		Name:      "bootstrap",
		KeyHash:   hash,
		KeyPrefix: storage.ExtractKeyPrefix(key),
		IsActive:  true,
	}
	if err := store.CreateAPIKey(record); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}

	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║              FIRST-TIME SETUP                              ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("A client API key was generated for this installation:")
	fmt.Println()
	fmt.Printf("    %s\n", key)
	fmt.Println()
	fmt.Println("Send it as 'Authorization: Bearer <key>' on proxy requests.")
	fmt.Println("It will not be shown again.")
	fmt.Println()
	return nil
}
