package banner

import (
	"fmt"
	"strings"

	"harbor/pkg/config"
)

const banner = `
██╗  ██╗ █████╗ ██████╗ ██████╗  ██████╗ ██████╗
██║  ██║██╔══██╗██╔══██╗██╔══██╗██╔═══██╗██╔══██╗
███████║███████║██████╔╝██████╔╝██║   ██║██████╔╝
██╔══██║██╔══██║██╔══██╗██╔══██╗██║   ██║██╔══██╗
██║  ██║██║  ██║██║  ██║██████╔╝╚██████╔╝██║  ██║
╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝  ╚═════╝ ╚═╝  ╚═╝
`

// Print writes the startup banner and a configuration summary to stdout.
func Print(cfg *config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	fmt.Printf("Socket:   %s\n", cfg.Daemon.Socket)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if len(cfg.Relays) > 0 {
		fmt.Printf("Relays:   %s\n", strings.Join(cfg.Relays, ", "))
	} else {
		fmt.Println("Relays:   none configured (local store only)")
	}
	if cfg.UserPubkey != "" {
		fmt.Printf("User:     %s\n", cfg.UserPubkey)
	}
	fmt.Printf("Signer:   %s\n", cfg.Signer)
	if cfg.Metrics.Addr != "" {
		fmt.Printf("Metrics:  http://%s/metrics\n", cfg.Metrics.Addr)
	}

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("harborctl status")
	fmt.Println("harborctl open-project 31933:<pubkey>:<project-id>")
	fmt.Println("harborctl send-message '31933:<pubkey>:<project-id>' 'hello'")
	fmt.Println("\n== Logs =======================================================")
}
