// Command aes_device connects to an AES-transport (H100/H200-class) hub,
// fans out a batch of get_device_info calls across its children, and
// demonstrates control_child + multipleRequest via device.Device.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/device"
	"github.com/gokasa/kasa-core/smart"
)

func main() {
	host := flag.String("host", "", "hub IP address")
	credentialsHash := flag.String("credentials-hash", "", "pre-computed base64 credentialsHash")
	childIDs := flag.String("children", "", "comma-separated child device IDs")
	flag.Parse()

	if *host == "" {
		log.Fatal("aes_device: -host is required")
	}

	cfg := device.Config{
		Host:            *host,
		Transport:       device.TransportAES,
		TimeoutMS:       5000,
		CredentialsHash: credentials.Hash(*credentialsHash),
	}

	d, err := device.New(cfg, credentials.Options{})
	if err != nil {
		log.Fatalf("aes_device: configure: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	requests := []smart.Request{{Method: "get_device_info"}, {Method: "get_device_usage"}}

	for _, childID := range strings.Split(*childIDs, ",") {
		childID = strings.TrimSpace(childID)
		if childID == "" {
			continue
		}
		results, err := d.SendSmartRequests(ctx, requests, childID)
		if err != nil {
			log.Fatalf("aes_device: child %s: %v", childID, err)
		}
		printResults(childID, results)
	}
}

func printResults(childID string, results map[string]json.RawMessage) {
	fmt.Printf("child %s:\n", childID)
	for method, result := range results {
		fmt.Printf("  %s: %s\n", method, string(result))
	}
}
