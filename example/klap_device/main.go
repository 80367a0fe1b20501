// Command klap_device connects to a KLAP-transport smart plug/bulb and
// prints its device info, demonstrating the minimal device.Device usage
// path: configure, send one SMART command, close.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/device"
)

func main() {
	host := flag.String("host", "", "device IP address")
	username := flag.String("username", "", "TP-Link/Tapo account username")
	password := flag.String("password", "", "TP-Link/Tapo account password")
	flag.Parse()

	if *host == "" {
		log.Fatal("klap_device: -host is required")
	}

	cfg := device.Config{
		Host:      *host,
		Transport: device.TransportKLAP,
		TimeoutMS: 5000,
	}

	clientDefault := credentials.Options{
		Credentials: credentials.Credentials{Username: *username, Password: *password},
	}

	d, err := device.New(cfg, clientDefault)
	if err != nil {
		log.Fatalf("klap_device: configure: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := d.SendSmartCommand(ctx, "get_device_info", nil, "")
	if err != nil {
		log.Fatalf("klap_device: get_device_info: %v", err)
	}
	fmt.Println(string(result))
}
