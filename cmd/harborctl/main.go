package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"harbor/pkg/daemon"
)

// Exit codes follow sysexits: 2 for usage errors, 74 when the daemon
// cannot be reached, 75 when the daemon reports a command failure.
const (
	exitOK    = 0
	exitUsage = 2
	exitIO    = 74
	exitTemp  = 75
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: harborctl [-socket path] <command> [args]

commands:
  status                               show daemon status
  open-project <kind:pubkey:d>         subscribe to a project
  send-message <project> <content>     publish a message to a project
      [-thread <event-id>]             reply within an existing thread
  shutdown                             stop the daemon
`)
}

func main() {
	_ = godotenv.Load(".env")

	sockDefault := os.Getenv("HARBOR_SOCKET")
	if sockDefault == "" {
		sockDefault = "./harbord.sock"
	}
	socket := flag.String("socket", sockDefault, "daemon control socket")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(exitUsage)
	}

	req, ok := buildRequest(args)
	if !ok {
		usage()
		os.Exit(exitUsage)
	}

	client := daemon.NewClient(*socket)
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "harborctl: %v\n", err)
		os.Exit(exitIO)
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "harborctl: %s\n", resp.Error)
		os.Exit(exitTemp)
	}
	if len(resp.Data) > 0 {
		fmt.Println(string(resp.Data))
	}
	os.Exit(exitOK)
}

func buildRequest(args []string) (daemon.Request, bool) {
	switch args[0] {
	case "status", "shutdown":
		if len(args) != 1 {
			return daemon.Request{}, false
		}
		return daemon.Request{Command: args[0]}, true
	case "open-project":
		if len(args) != 2 {
			return daemon.Request{}, false
		}
		return daemon.Request{
			Command: "open-project",
			Args:    map[string]string{"project": args[1]},
		}, true
	case "send-message":
		fs := flag.NewFlagSet("send-message", flag.ContinueOnError)
		thread := fs.String("thread", "", "thread root event id")
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() != 2 {
			return daemon.Request{}, false
		}
		req := daemon.Request{
			Command: "send-message",
			Args: map[string]string{
				"project": fs.Arg(0),
				"content": fs.Arg(1),
			},
		}
		if *thread != "" {
			req.Args["thread"] = *thread
		}
		return req, true
	default:
		return daemon.Request{}, false
	}
}
